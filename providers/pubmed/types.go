// Package pubmed löst PMIDs über den PMC ID Converter der NCBI auf.
package pubmed

// IDConvResponse repräsentiert die JSON-Antwort des PMC ID Converters.
type IDConvResponse struct {
	Status  string         `json:"status"`
	Records []IDConvRecord `json:"records"`
}

// IDConvRecord ist ein Eintrag der Antwort. Unbekannte IDs tragen Status "error".
type IDConvRecord struct {
	PMID   string `json:"pmid"`
	PMCID  string `json:"pmcid"`
	DOI    string `json:"doi"`
	Status string `json:"status"`
	ErrMsg string `json:"errmsg"`
}
