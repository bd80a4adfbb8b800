package models

import "time"

// Identifier hängt bibliografische Kennungen an ein Document. Alle Kennungen sind optional.
type Identifier struct {
	CoreID    uint      `json:"core_id" gorm:"column:core_id;primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at"`

	// PMID wird unverändert aus der Quelle übernommen (z.B. Dateiname), daher string.
	PMID  *string `json:"pmid,omitempty" gorm:"column:pmid;index"`
	PMCID *string `json:"pmcid,omitempty" gorm:"column:pmcid"`
	DOI   *string `json:"doi,omitempty" gorm:"column:doi"`

	DocumentID   uint        `json:"document_id" gorm:"index;not null"`
	Document     *Document   `json:"-" gorm:"constraint:OnDelete:RESTRICT"`
	ProvenanceID uint        `json:"provenance_id" gorm:"not null"`
	Provenance   *Provenance `json:"-" gorm:"constraint:OnDelete:RESTRICT"`
}

// TableName gibt explizit den Tabellennamen an.
func (Identifier) TableName() string {
	return "identifier"
}

// IdentifierFields sind die optionalen Kennungen vor dem Speichern.
type IdentifierFields struct {
	PMID  string `json:"pmid,omitempty"`
	PMCID string `json:"pmcid,omitempty"`
	DOI   string `json:"doi,omitempty"`
}

// Empty meldet, ob keine einzige Kennung gesetzt ist.
func (f IdentifierFields) Empty() bool {
	return f.PMID == "" && f.PMCID == "" && f.DOI == ""
}
