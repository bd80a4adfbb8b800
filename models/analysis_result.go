package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalysisResult speichert das ODDPub-Ergebnis für ein Document.
// Ergebnisse werden nie aktualisiert, eine erneute Analyse erzeugt eine neue Zeile.
type AnalysisResult struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Article            string  `json:"article" gorm:"index;not null"`
	IsOpenData         bool    `json:"is_open_data" gorm:"not null"`
	OpenDataCategory   *string `json:"open_data_category"`
	IsReuse            bool    `json:"is_reuse" gorm:"not null"`
	IsOpenCode         bool    `json:"is_open_code" gorm:"not null"`
	IsOpenDataDAS      bool    `json:"is_open_data_das" gorm:"column:is_open_data_das;not null"`
	IsOpenCodeCAS      bool    `json:"is_open_code_cas" gorm:"column:is_open_code_cas;not null"`
	DAS                *string `json:"das" gorm:"column:das"`
	OpenDataStatements *string `json:"open_data_statements"`
	CAS                *string `json:"cas" gorm:"column:cas"`
	OpenCodeStatements *string `json:"open_code_statements"`

	WorkID       *uint       `json:"work_id" gorm:"index"`
	Work         *Work       `json:"-" gorm:"constraint:OnDelete:RESTRICT"`
	ProvenanceID *uint       `json:"provenance_id" gorm:"index"`
	Provenance   *Provenance `json:"-" gorm:"constraint:OnDelete:RESTRICT"`
	DocumentID   *uint       `json:"document_id" gorm:"index"`
	Document     *Document   `json:"-" gorm:"constraint:OnDelete:RESTRICT"`

	// Rohantwort des Dienstes
	RawResponse datatypes.JSON `json:"raw_response,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (AnalysisResult) TableName() string {
	return "oddpub_metrics"
}
