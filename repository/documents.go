package repository

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/dbctx"
	"dsst-etl/models"
)

// KnownDocument ist der Snapshot-Eintrag eines bereits gespeicherten Inhalts.
type KnownDocument struct {
	DocumentID  uint
	WorkID      *uint
	StorageURI  string
	HasAnalysis bool
}

// HashIndex bildet content_hash auf das lebende Document ab.
type HashIndex map[string]KnownDocument

// Has meldet, ob der Hash bekannt ist.
func (h HashIndex) Has(hash string) bool {
	_, ok := h[hash]
	return ok
}

// DocumentRepo verwaltet Documents und die zugehörigen Works.
type DocumentRepo struct {
	db       *gorm.DB
	log      *zap.Logger
	analyses *AnalysisRepo
}

// NewDocumentRepo erstellt ein neues DocumentRepo.
func NewDocumentRepo(db *gorm.DB, log *zap.Logger) *DocumentRepo {
	return &DocumentRepo{
		db:       db,
		log:      log.With(zap.String("repo", "DocumentRepo")),
		analyses: NewAnalysisRepo(db, log),
	}
}

// ExistingHashes liest einmalig alle lebenden Hashes samt Analyse-Status.
func (r *DocumentRepo) ExistingHashes(dbc dbctx.Context) (HashIndex, error) {
	var rows []struct {
		ID          uint
		ContentHash string
		StorageURI  string
		WorkID      *uint
		Analyses    int64
	}
	err := dbc.DB(r.db).
		Table("documents AS d").
		Select("d.id, d.content_hash, d.storage_uri, d.work_id, COUNT(m.id) AS analyses").
		Joins("LEFT JOIN oddpub_metrics m ON m.document_id = d.id").
		Group("d.id, d.content_hash, d.storage_uri, d.work_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load existing hashes: %w", err)
	}

	index := make(HashIndex, len(rows))
	for _, row := range rows {
		index[row.ContentHash] = KnownDocument{
			DocumentID:  row.ID,
			WorkID:      row.WorkID,
			StorageURI:  row.StorageURI,
			HasAnalysis: row.Analyses > 0,
		}
	}
	r.log.Debug("Loaded existing hashes", zap.Int("count", len(index)))
	return index, nil
}

// CreateDocumentAndWork legt ein Document und sein Work an. Beide verweisen auf provenanceID,
// das Work nutzt das Document als initiales und primäres Document.
func (r *DocumentRepo) CreateDocumentAndWork(dbc dbctx.Context, hash, storageURI string, provenanceID uint) (*models.Document, *models.Work, error) {
	tx := dbc.DB(r.db)

	doc := &models.Document{
		ContentHash:  hash,
		StorageURI:   storageURI,
		ProvenanceID: &provenanceID,
	}
	if err := tx.Create(doc).Error; err != nil {
		return nil, nil, fmt.Errorf("create document: %w", err)
	}

	work := &models.Work{
		InitialDocumentID: doc.ID,
		PrimaryDocumentID: doc.ID,
		ProvenanceID:      &provenanceID,
	}
	if err := tx.Create(work).Error; err != nil {
		return nil, nil, fmt.Errorf("create work: %w", err)
	}

	if err := tx.Model(doc).Update("work_id", work.ID).Error; err != nil {
		return nil, nil, fmt.Errorf("link document to work: %w", err)
	}
	doc.WorkID = &work.ID
	return doc, work, nil
}

// FindByHash liefert das Document zu einem Hash oder gorm.ErrRecordNotFound.
func (r *DocumentRepo) FindByHash(dbc dbctx.Context, hash string) (*models.Document, error) {
	var doc models.Document
	if err := dbc.DB(r.db).Where("content_hash = ?", hash).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// DocumentDetails ist ein Document mit allem, was daran hängt.
type DocumentDetails struct {
	Document    models.Document         `json:"document"`
	Work        *models.Work            `json:"work,omitempty"`
	Identifiers []models.Identifier     `json:"identifiers"`
	Analyses    []models.AnalysisResult `json:"analyses"`
}

// Details lädt ein Document samt Work, Identifiern und Analyseergebnissen.
func (r *DocumentRepo) Details(dbc dbctx.Context, hash string) (*DocumentDetails, error) {
	doc, err := r.FindByHash(dbc, hash)
	if err != nil {
		return nil, err
	}
	tx := dbc.DB(r.db)
	out := &DocumentDetails{Document: *doc}

	if doc.WorkID != nil {
		var work models.Work
		err := tx.First(&work, *doc.WorkID).Error
		switch {
		case err == nil:
			out.Work = &work
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	if err := tx.Where("document_id = ?", doc.ID).Order("core_id").Find(&out.Identifiers).Error; err != nil {
		return nil, err
	}
	if out.Analyses, err = r.analyses.ListByDocument(dbc, doc.ID); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocument entfernt das Document zum Hash samt allem, was davon abhängt:
// Analyseergebnisse, Identifier und Works, deren initiales oder primäres Document es ist.
// Andere Documents, die auf ein gelöschtes Work zeigen, verlieren nur ihre work_id.
// Rückgabe false, wenn kein Document mit dem Hash existiert.
func (r *DocumentRepo) DeleteDocument(dbc dbctx.Context, hash string) (bool, error) {
	deleted := false
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Where("content_hash = ?", hash).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		var workIDs []uint
		if err := tx.Model(&models.Work{}).
			Where("initial_document_id = ? OR primary_document_id = ?", doc.ID, doc.ID).
			Pluck("id", &workIDs).Error; err != nil {
			return fmt.Errorf("find works: %w", err)
		}

		analyses := tx.Where("document_id = ?", doc.ID)
		if len(workIDs) > 0 {
			analyses = tx.Where("document_id = ? OR work_id IN ?", doc.ID, workIDs)
		}
		if err := analyses.Delete(&models.AnalysisResult{}).Error; err != nil {
			return fmt.Errorf("delete analysis results: %w", err)
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&models.Identifier{}).Error; err != nil {
			return fmt.Errorf("delete identifiers: %w", err)
		}
		if len(workIDs) > 0 {
			if err := tx.Model(&models.Document{}).
				Where("work_id IN ? AND id <> ?", workIDs, doc.ID).
				Update("work_id", nil).Error; err != nil {
				return fmt.Errorf("unlink documents: %w", err)
			}
			if err := tx.Where("id IN ?", workIDs).Delete(&models.Work{}).Error; err != nil {
				return fmt.Errorf("delete works: %w", err)
			}
		}
		if err := tx.Delete(&doc).Error; err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		deleted = true
		return nil
	})
	return deleted, err
}
