package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/config"
	"dsst-etl/dbctx"
	"dsst-etl/models"
	"dsst-etl/repository"
	"dsst-etl/storage"
)

// UploadPipelineName steht in der Provenance von Uploads.
const UploadPipelineName = "Document Upload"

// UploadRequest beschreibt einen Upload eines lokalen Verzeichnisses.
type UploadRequest struct {
	Dir          string
	MetadataFile string // optional
	IsPMIDs      bool
	Comment      string
}

// UploadResult listet die Dateien je Ergebnis.
type UploadResult struct {
	Successful   []string `json:"successful"`
	Skipped      []string `json:"skipped"`
	Failed       []string `json:"failed"`
	ProvenanceID uint     `json:"provenance_id,omitempty"`
}

// UploadService lädt lokale PDFs in den Object Store und legt sie direkt als Documents an.
type UploadService struct {
	Config *config.Config
	DB     *gorm.DB
	Store  storage.ObjectStore
	Logger *zap.Logger

	documents   *repository.DocumentRepo
	provenance  *repository.ProvenanceRepo
	identifiers *repository.IdentifierRepo
}

// NewUploadService erstellt eine neue Instanz des UploadService.
func NewUploadService(cfg *config.Config, db *gorm.DB, store storage.ObjectStore, logger *zap.Logger) *UploadService {
	return &UploadService{
		Config:      cfg,
		DB:          db,
		Store:       store,
		Logger:      logger,
		documents:   repository.NewDocumentRepo(db, logger),
		provenance:  repository.NewProvenanceRepo(db, logger),
		identifiers: repository.NewIdentifierRepo(db, logger),
	}
}

// UploadKey ist der Object-Key einer hochgeladenen Datei.
func UploadKey(filename string) string {
	return "pdfs/" + filepath.Base(filename)
}

// Run lädt alle Dateien mit FILE_SUFFIX aus req.Dir hoch. Bekannte Inhalte werden übersprungen,
// Fehler einzelner Dateien landen in Failed.
func (u *UploadService) Run(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	files, err := filepath.Glob(filepath.Join(req.Dir, "*"+u.Config.FileSuffix))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", req.Dir, err)
	}
	sort.Strings(files)
	result := &UploadResult{}
	if len(files) == 0 {
		u.Logger.Warn("No files to upload", zap.String("dir", req.Dir), zap.String("suffix", u.Config.FileSuffix))
		return result, nil
	}

	resolver := IdentifierResolver(noIdentifiers{})
	if req.MetadataFile != "" {
		byFilename, err := LoadMetadataFile(req.MetadataFile)
		if err != nil {
			return nil, err
		}
		resolver = MetadataResolver{ByFilename: byFilename, IsPMIDs: req.IsPMIDs}
	} else if req.IsPMIDs {
		resolver = MetadataResolver{IsPMIDs: true}
	}

	err = u.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: conn}
		known, err := u.documents.ExistingHashes(dbc)
		if err != nil {
			return err
		}
		tracker := newProvenanceTracker(u.provenance, NewRunProvenance(u.Config, UploadPipelineName, req.Comment))

		for _, file := range files {
			name := filepath.Base(file)
			log := u.Logger.With(zap.String("file", name))

			payload, err := os.ReadFile(file)
			if err != nil {
				log.Error("Failed to read file", zap.Error(err))
				result.Failed = append(result.Failed, name)
				continue
			}
			hash, err := HashBytes(payload)
			if err != nil {
				log.Error("Failed to hash file", zap.Error(err))
				result.Failed = append(result.Failed, name)
				continue
			}
			if known.Has(hash) {
				log.Info("Content already stored, skipping", zap.String("hash", hash))
				result.Skipped = append(result.Skipped, name)
				continue
			}

			key := UploadKey(name)
			if err := u.Store.Put(ctx, key, payload); err != nil {
				log.Error("Failed to upload file", zap.String("key", key), zap.Error(err))
				result.Failed = append(result.Failed, name)
				continue
			}

			fields, createEmpty := resolver.Resolve(key)
			var doc *models.Document
			err = conn.Transaction(func(tx *gorm.DB) error {
				itx := dbctx.Context{Ctx: ctx, Tx: tx}
				prov, err := tracker.ensure(itx)
				if err != nil {
					return err
				}
				if doc, _, err = u.documents.CreateDocumentAndWork(itx, hash, u.Store.URI(key), prov.ID); err != nil {
					return err
				}
				_, err = u.identifiers.Attach(itx, doc.ID, prov.ID, fields, createEmpty)
				return err
			})
			tracker.settle(err == nil)
			if err != nil {
				log.Error("Failed to record uploaded file, object left in store", zap.String("key", key), zap.Error(err))
				result.Failed = append(result.Failed, name)
				continue
			}

			known[hash] = repository.KnownDocument{DocumentID: doc.ID, WorkID: doc.WorkID, StorageURI: doc.StorageURI}
			log.Info("Uploaded document", zap.String("key", key), zap.Uint("document_id", doc.ID))
			result.Successful = append(result.Successful, name)
		}
		result.ProvenanceID = tracker.ID()
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.Logger.Info("Upload finished",
		zap.Int("successful", len(result.Successful)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}
