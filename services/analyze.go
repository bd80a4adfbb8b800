package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/config"
	"dsst-etl/dbctx"
	"dsst-etl/models"
	"dsst-etl/providers"
	"dsst-etl/repository"
)

// AnalysisPipelineName steht in der Provenance gespeicherter Verzeichnis-Analysen.
const AnalysisPipelineName = "ODDPub Analysis"

// LocalAnalysis ist das Ergebnis für eine lokale Datei.
type LocalAnalysis struct {
	File       string                 `json:"file"`
	Hash       string                 `json:"hash,omitempty"`
	Result     *models.AnalysisResult `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DocumentID uint                   `json:"document_id,omitempty"`
	Persisted  bool                   `json:"persisted"`
}

// LocalAnalysisService analysiert PDFs aus einem lokalen Verzeichnis.
type LocalAnalysisService struct {
	Config   *config.Config
	DB       *gorm.DB
	Analyzer providers.Analyzer
	Logger   *zap.Logger

	documents  *repository.DocumentRepo
	provenance *repository.ProvenanceRepo
	analyses   *repository.AnalysisRepo
}

// NewLocalAnalysisService erstellt eine neue Instanz des LocalAnalysisService.
func NewLocalAnalysisService(cfg *config.Config, db *gorm.DB, analyzer providers.Analyzer, logger *zap.Logger) *LocalAnalysisService {
	return &LocalAnalysisService{
		Config:     cfg,
		DB:         db,
		Analyzer:   analyzer,
		Logger:     logger,
		documents:  repository.NewDocumentRepo(db, logger),
		provenance: repository.NewProvenanceRepo(db, logger),
		analyses:   repository.NewAnalysisRepo(db, logger),
	}
}

// Run analysiert alle Dateien in dir. Nur mit approve werden Ergebnisse zu bereits bekannten
// Documents gespeichert; unbekannte Inhalte werden nie angelegt.
func (a *LocalAnalysisService) Run(ctx context.Context, dir string, approve bool) ([]LocalAnalysis, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+a.Config.FileSuffix))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(files)

	results := make([]LocalAnalysis, 0, len(files))
	for _, file := range files {
		entry := LocalAnalysis{File: filepath.Base(file)}
		log := a.Logger.With(zap.String("file", entry.File))

		payload, err := os.ReadFile(file)
		if err == nil {
			entry.Hash, err = HashBytes(payload)
		}
		if err == nil {
			entry.Result, err = a.Analyzer.Analyze(ctx, entry.File, payload)
		}
		if err != nil {
			log.Error("Analysis failed", zap.Error(err))
			entry.Error = err.Error()
		}
		results = append(results, entry)
	}

	if !approve {
		a.Logger.Info("Results not stored; rerun with --yes or AUTO_APPROVE=true to persist them", zap.Int("files", len(results)))
		return results, nil
	}
	if err := a.persist(ctx, results); err != nil {
		return results, err
	}
	return results, nil
}

func (a *LocalAnalysisService) persist(ctx context.Context, results []LocalAnalysis) error {
	return a.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		tracker := newProvenanceTracker(a.provenance, NewRunProvenance(a.Config, AnalysisPipelineName, ""))
		for i := range results {
			entry := &results[i]
			if entry.Result == nil {
				continue
			}
			log := a.Logger.With(zap.String("file", entry.File), zap.String("hash", entry.Hash))

			doc, err := a.documents.FindByHash(dbctx.Context{Ctx: ctx, Tx: conn}, entry.Hash)
			if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && doc.WorkID == nil) {
				log.Warn("No stored document for this content, result not persisted")
				continue
			}
			if err != nil {
				return err
			}

			err = conn.Transaction(func(tx *gorm.DB) error {
				itx := dbctx.Context{Ctx: ctx, Tx: tx}
				prov, err := tracker.ensure(itx)
				if err != nil {
					return err
				}
				return a.analyses.Persist(itx, entry.Result, *doc.WorkID, doc.ID, prov.ID)
			})
			tracker.settle(err == nil)
			if err != nil {
				log.Error("Failed to store analysis", zap.Error(err))
				entry.Error = err.Error()
				continue
			}
			entry.DocumentID = doc.ID
			entry.Persisted = true
		}
		return nil
	})
}
