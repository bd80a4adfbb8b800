package oddpub

import (
	"fmt"

	"dsst-etl/models"
)

// Response ist die JSON-Antwort von POST /oddpub.
// Pflichtfelder sind Pointer, damit fehlende Felder erkannt werden.
type Response struct {
	Article            *string `json:"article"`
	IsOpenData         *bool   `json:"is_open_data"`
	OpenDataCategory   *string `json:"open_data_category"`
	IsReuse            *bool   `json:"is_reuse"`
	IsOpenCode         *bool   `json:"is_open_code"`
	IsOpenDataDAS      *bool   `json:"is_open_data_das"`
	IsOpenCodeCAS      *bool   `json:"is_open_code_cas"`
	DAS                *string `json:"das"`
	OpenDataStatements *string `json:"open_data_statements"`
	CAS                *string `json:"cas"`
	OpenCodeStatements *string `json:"open_code_statements"`
}

func (r *Response) validate() error {
	required := []struct {
		name    string
		present bool
	}{
		{"article", r.Article != nil},
		{"is_open_data", r.IsOpenData != nil},
		{"is_reuse", r.IsReuse != nil},
		{"is_open_code", r.IsOpenCode != nil},
		{"is_open_data_das", r.IsOpenDataDAS != nil},
		{"is_open_code_cas", r.IsOpenCodeCAS != nil},
	}
	for _, f := range required {
		if !f.present {
			return fmt.Errorf("missing field %q", f.name)
		}
	}
	return nil
}

// toModel konvertiert die Antwort in unser internes AnalysisResult-Modell.
func (r *Response) toModel() *models.AnalysisResult {
	return &models.AnalysisResult{
		Article:            *r.Article,
		IsOpenData:         *r.IsOpenData,
		OpenDataCategory:   r.OpenDataCategory,
		IsReuse:            *r.IsReuse,
		IsOpenCode:         *r.IsOpenCode,
		IsOpenDataDAS:      *r.IsOpenDataDAS,
		IsOpenCodeCAS:      *r.IsOpenCodeCAS,
		DAS:                r.DAS,
		OpenDataStatements: r.OpenDataStatements,
		CAS:                r.CAS,
		OpenCodeStatements: r.OpenCodeStatements,
	}
}
