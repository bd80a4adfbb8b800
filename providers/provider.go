package providers

import (
	"context"

	"dsst-etl/models"
)

// Analyzer ist das Interface für den externen Open-Science-Metrik-Dienst.
type Analyzer interface {
	// Analyze schickt eine Datei an den Dienst und liefert das noch nicht verknüpfte Ergebnis.
	Analyze(ctx context.Context, filename string, payload []byte) (*models.AnalysisResult, error)

	// Name gibt den eindeutigen Namen des Dienstes zurück (z.B. "oddpub").
	Name() string
}

// IdentifierLookup ergänzt fehlende Kennungen zu einer PMID.
type IdentifierLookup interface {
	LookupIdentifiers(ctx context.Context, pmid string) (models.IdentifierFields, error)
}
