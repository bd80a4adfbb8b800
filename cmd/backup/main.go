package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"dsst-etl/config"
	"dsst-etl/storage"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()
	logging.Info("Starting backup...")

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}
	if cfg.KeepBackups < 0 {
		logging.Fatal("KEEP_BACKUPS must not be negative", zap.Int("keep", cfg.KeepBackups))
	}
	ctx := context.Background()

	// 1. Datenbank-Dump erstellen
	dumpData, err := createDump(ctx, cfg)
	if err != nil {
		logging.Fatal("Failed to create database dump", zap.Error(err))
	}

	// 2. Object Store öffnen, derselbe Bucket wie die PDFs
	store, err := storage.New(ctx, cfg, logging)
	if err != nil {
		logging.Fatal("Object store creation failed", zap.Error(err))
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	// 3. Backup hochladen
	key := backupKey(cfg.BackupPrefix, time.Now())
	if err := store.Put(ctx, key, dumpData); err != nil {
		logging.Fatal("Failed to upload backup", zap.String("key", key), zap.Error(err))
	}
	logging.Info("Backup uploaded", zap.String("uri", store.URI(key)), zap.Int("bytes", len(dumpData)))

	// 4. Alte Backups rotieren
	if err := rotateBackups(ctx, store, cfg.BackupPrefix, cfg.KeepBackups, logging); err != nil {
		logging.Fatal("Failed to rotate old backups", zap.Error(err))
	}
	logging.Info("Backup finished.")
}

// backupKey: Zeitstempel im Namen, damit die lexikografische Reihenfolge der zeitlichen entspricht.
func backupKey(prefix string, now time.Time) string {
	return fmt.Sprintf("%sbackup-%s.sql.gz", prefix, now.UTC().Format("2006-01-02T15-04-05Z"))
}

func createDump(ctx context.Context, cfg *config.Config) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", fmt.Sprint(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort wird über PGPASSWORD bereitgestellt
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.DBPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, stdout); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// rotateBackups behält die keep neuesten Backups unter prefix.
func rotateBackups(ctx context.Context, store storage.ObjectStore, prefix string, keep int, logging *zap.Logger) error {
	if keep < 0 {
		return fmt.Errorf("keep must not be negative, got %d", keep)
	}
	var keys []string
	for obj, err := range store.List(ctx, prefix) {
		if err != nil {
			return err
		}
		if strings.HasSuffix(obj.Key, ".sql.gz") {
			keys = append(keys, obj.Key)
		}
	}

	if len(keys) <= keep {
		logging.Info("No rotation needed", zap.Int("backups", len(keys)), zap.Int("keep", keep))
		return nil
	}

	slices.Sort(keys)
	slices.Reverse(keys)
	for _, key := range keys[keep:] {
		logging.Info("Deleting old backup", zap.String("key", key))
		if err := store.Delete(ctx, key); err != nil {
			logging.Error("Failed to delete backup", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}
