package repository

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/dbctx"
	"dsst-etl/models"
)

// ProvenanceRepo schreibt Provenance-Einträge. Einträge werden nie geändert.
type ProvenanceRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewProvenanceRepo erstellt ein neues ProvenanceRepo.
func NewProvenanceRepo(db *gorm.DB, log *zap.Logger) *ProvenanceRepo {
	return &ProvenanceRepo{db: db, log: log.With(zap.String("repo", "ProvenanceRepo"))}
}

// CreateRun legt den Provenance-Eintrag für einen Lauf an.
func (r *ProvenanceRepo) CreateRun(dbc dbctx.Context, p *models.Provenance) error {
	if p.PipelineName == "" {
		return fmt.Errorf("create provenance: pipeline name is required")
	}
	if err := dbc.DB(r.db).Create(p).Error; err != nil {
		return fmt.Errorf("create provenance: %w", err)
	}
	r.log.Info("Created provenance record", zap.Uint("provenance_id", p.ID), zap.String("pipeline", p.PipelineName))
	return nil
}

// Get lädt einen Provenance-Eintrag.
func (r *ProvenanceRepo) Get(dbc dbctx.Context, id uint) (*models.Provenance, error) {
	var p models.Provenance
	if err := dbc.DB(r.db).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
