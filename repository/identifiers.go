package repository

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/dbctx"
	"dsst-etl/models"
)

// IdentifierRepo hängt Identifier an Documents.
type IdentifierRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewIdentifierRepo erstellt ein neues IdentifierRepo.
func NewIdentifierRepo(db *gorm.DB, log *zap.Logger) *IdentifierRepo {
	return &IdentifierRepo{db: db, log: log.With(zap.String("repo", "IdentifierRepo"))}
}

// Attach legt höchstens eine Identifier-Zeile an. Ohne Kennungen passiert nichts,
// es sei denn createEmpty ist gesetzt (Dokument stammt aus einem PMID-Batch).
// Gibt nil zurück, wenn nichts angelegt wurde.
func (r *IdentifierRepo) Attach(dbc dbctx.Context, documentID, provenanceID uint, fields models.IdentifierFields, createEmpty bool) (*models.Identifier, error) {
	if fields.Empty() && !createEmpty {
		return nil, nil
	}
	ident := &models.Identifier{
		PMID:         optional(fields.PMID),
		PMCID:        optional(fields.PMCID),
		DOI:          optional(fields.DOI),
		DocumentID:   documentID,
		ProvenanceID: provenanceID,
	}
	if err := dbc.DB(r.db).Create(ident).Error; err != nil {
		return nil, fmt.Errorf("create identifier: %w", err)
	}
	return ident, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
