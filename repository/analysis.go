package repository

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/dbctx"
	"dsst-etl/models"
)

// AnalysisRepo persistiert ODDPub-Ergebnisse.
type AnalysisRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAnalysisRepo erstellt ein neues AnalysisRepo.
func NewAnalysisRepo(db *gorm.DB, log *zap.Logger) *AnalysisRepo {
	return &AnalysisRepo{db: db, log: log.With(zap.String("repo", "AnalysisRepo"))}
}

// Persist speichert ein Ergebnis verknüpft mit Work, Document und Provenance.
// Es wird immer eine neue Zeile angelegt.
func (r *AnalysisRepo) Persist(dbc dbctx.Context, result *models.AnalysisResult, workID, documentID, provenanceID uint) error {
	result.ID = 0
	result.WorkID = &workID
	result.DocumentID = &documentID
	result.ProvenanceID = &provenanceID
	if err := dbc.DB(r.db).Create(result).Error; err != nil {
		return fmt.Errorf("create analysis result: %w", err)
	}
	return nil
}

// ListByDocument liefert alle Ergebnisse eines Documents, älteste zuerst.
func (r *AnalysisRepo) ListByDocument(dbc dbctx.Context, documentID uint) ([]models.AnalysisResult, error) {
	var out []models.AnalysisResult
	if err := dbc.DB(r.db).Where("document_id = ?", documentID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
