package models

import "time"

// Provenance beschreibt einen einzelnen Pipeline-Lauf. Nach dem Commit unveränderlich.
type Provenance struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	PipelineName   string    `json:"pipeline_name" gorm:"not null"`
	Version        string    `json:"version"`
	ComputeContext string    `json:"compute_context" gorm:"column:compute"`
	Personnel      string    `json:"personnel"`
	Comment        string    `json:"comment,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Provenance) TableName() string {
	return "provenance"
}
