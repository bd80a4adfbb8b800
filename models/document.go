package models

import "time"

// Document ist genau ein eindeutig gehashter Inhalt und sein Speicherort im Object Store.
type Document struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	// SHA-256 des Inhalts, eindeutig über alle lebenden Documents
	ContentHash  string `json:"content_hash" gorm:"column:content_hash;uniqueIndex;size:64;not null"`
	StorageURI   string `json:"storage_uri" gorm:"column:storage_uri;type:text;not null"`
	ProvenanceID *uint  `json:"provenance_id,omitempty" gorm:"index"`
	WorkID       *uint  `json:"work_id,omitempty" gorm:"index"`
}

// TableName gibt explizit den Tabellennamen an.
func (Document) TableName() string {
	return "documents"
}
