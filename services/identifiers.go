package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"dsst-etl/config"
	"dsst-etl/models"
)

// IdentifierResolver leitet die Kennungen eines Objekts aus seinem Key ab.
type IdentifierResolver interface {
	// Resolve liefert die Kennungen und ob auch ohne Kennungen eine Identifier-Zeile angelegt werden soll.
	Resolve(key string) (fields models.IdentifierFields, createEmpty bool)
}

// FilenamePMIDResolver nimmt den Dateinamen bis zum ersten Punkt unverändert als PMID.
type FilenamePMIDResolver struct{}

func (FilenamePMIDResolver) Resolve(key string) (models.IdentifierFields, bool) {
	return models.IdentifierFields{PMID: PMIDFromKey(key)}, true
}

// PMIDFromKey: "pdfs/12345678.pdf" -> "12345678". Keine Prüfung, ob das Token numerisch ist.
func PMIDFromKey(key string) string {
	base := path.Base(key)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// MetadataResolver schlägt Kennungen per Dateiname in einer Metadaten-Datei nach.
type MetadataResolver struct {
	ByFilename map[string]models.IdentifierFields
	// IsPMIDs: auch ohne Eintrag eine leere Identifier-Zeile anlegen
	IsPMIDs bool
}

func (m MetadataResolver) Resolve(key string) (models.IdentifierFields, bool) {
	return m.ByFilename[filenameKey(path.Base(key))], m.IsPMIDs
}

// filenameKey vereinheitlicht Dateinamen auf NFC. macOS liefert Pfade teils in NFD.
func filenameKey(name string) string {
	return norm.NFC.String(name)
}

type noIdentifiers struct{}

func (noIdentifiers) Resolve(string) (models.IdentifierFields, bool) {
	return models.IdentifierFields{}, false
}

// NewIdentifierResolver wählt den Resolver gemäß IDENTIFIER_SOURCE.
func NewIdentifierResolver(cfg *config.Config) (IdentifierResolver, error) {
	switch cfg.IdentifierSource {
	case config.IdentifierFromFilename:
		return FilenamePMIDResolver{}, nil
	case config.IdentifierFromMetadata:
		byFilename, err := LoadMetadataFile(cfg.MetadataFile)
		if err != nil {
			return nil, err
		}
		return MetadataResolver{ByFilename: byFilename, IsPMIDs: cfg.IsPMIDs}, nil
	case config.IdentifierNone:
		return noIdentifiers{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown IDENTIFIER_SOURCE %q", config.ErrConfiguration, cfg.IdentifierSource)
	}
}

type metadataPDF struct {
	Filepath string     `json:"filepath"`
	PMID     flexString `json:"PMID"`
	DOI      flexString `json:"DOI"`
	PMCID    flexString `json:"PMCID"`
}

type metadataGroup struct {
	PDFs []metadataPDF `json:"pdfs"`
}

// flexString akzeptiert Strings, Zahlen und null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// LoadMetadataFile liest {"<gruppe>": {"pdfs": [{"filepath", "PMID", "DOI", "PMCID"}]}}
// und indiziert die Einträge nach Dateiname.
func LoadMetadataFile(name string) (map[string]models.IdentifierFields, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}
	var groups map[string]metadataGroup
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("parse metadata file %s: %w", name, err)
	}

	out := make(map[string]models.IdentifierFields)
	for _, group := range groups {
		for _, pdf := range group.PDFs {
			out[filenameKey(filepath.Base(pdf.Filepath))] = models.IdentifierFields{
				PMID:  string(pdf.PMID),
				DOI:   string(pdf.DOI),
				PMCID: string(pdf.PMCID),
			}
		}
	}
	return out, nil
}
