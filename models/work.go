package models

import "time"

// Work fasst ein oder mehrere Documents unter einem primären Document zusammen.
type Work struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	InitialDocumentID uint  `json:"initial_document_id" gorm:"index;not null"`
	PrimaryDocumentID uint  `json:"primary_document_id" gorm:"index;not null"`
	ProvenanceID      *uint `json:"provenance_id,omitempty" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (Work) TableName() string {
	return "works"
}
