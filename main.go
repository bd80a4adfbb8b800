package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/config"
	"dsst-etl/database"
	"dsst-etl/providers/europepmc"
	"dsst-etl/providers/oddpub"
	"dsst-etl/providers/pubmed"
	"dsst-etl/services"
	"dsst-etl/storage"
)

// rootOptions hält die globalen Flags aller Befehle.
type rootOptions struct {
	Verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:     "dsst-etl",
		Short:   "Content-addressed PDF ingestion and ODDPub analysis",
		Version: services.Version,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "development logging at debug level")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newUploadCommand(opts))
	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

func newLogger(opts *rootOptions) *zap.Logger {
	var (
		logging *zap.Logger
		err     error
	)
	if opts.Verbose {
		logging, err = zap.NewDevelopment()
	} else {
		logging, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	return logging
}

// app bündelt die gemeinsam genutzten Abhängigkeiten eines Befehls.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	store   storage.ObjectStore
	closers []func() error
}

// bootstrap lädt Konfiguration, Datenbank und optional den Object Store.
func bootstrap(ctx context.Context, opts *rootOptions, withStore bool) (*app, error) {
	logging := newLogger(opts)
	a := &app{log: logging}

	cfg, err := config.Load()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	if withStore {
		if err := cfg.Validate(); err != nil {
			a.close()
			return nil, err
		}
		store, err := storage.New(ctx, cfg, logging)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = store
		if c, ok := store.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	db, err := database.Open(cfg, logging)
	if err != nil {
		a.close()
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() error { return database.Close(db) })
	if err := database.Migrate(db, logging); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Failed to close resource", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// newReconciler verdrahtet Analysedienst, optionale Anreicherung der Kennungen und Redis-Sperre.
func (a *app) newReconciler() (*services.ReconcileService, error) {
	svc, err := services.NewReconcileService(a.cfg, a.db, a.store, oddpub.NewClient(a.cfg, a.log), a.log)
	if err != nil {
		return nil, err
	}
	if a.cfg.EnrichIdentifiers {
		switch a.cfg.IdentifierLookup {
		case config.LookupPubMed:
			svc.Lookup = pubmed.NewFetcher(a.cfg, a.log)
		default:
			svc.Lookup = europepmc.NewFetcher(a.cfg, a.log)
		}
		a.log.Info("Enriching identifiers", zap.String("lookup", a.cfg.IdentifierLookup))
	}
	if a.cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddress})
		a.closers = append(a.closers, rdb.Close)
		svc.Locker = services.NewRedisRunLocker(rdb, a.cfg.LockTTL)
		a.log.Info("Using redis run lock", zap.String("address", a.cfg.RedisAddress))
	}
	return svc, nil
}
