package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"dsst-etl/config"
	"dsst-etl/models"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher ist eine Struktur, die die Logik zur Interaktion mit dem PMC ID Converter kapselt.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

func (f *Fetcher) idconvURL(pmid string) string {
	q := url.Values{}
	q.Set("ids", pmid)
	q.Set("idtype", "pmid")
	q.Set("format", "json")
	if f.Config.PubMedTool != "" {
		q.Set("tool", f.Config.PubMedTool)
	}
	if f.Config.PubMedEmail != "" {
		q.Set("email", f.Config.PubMedEmail)
	}
	if f.Config.PubMedAPIKey != "" {
		q.Set("api_key", f.Config.PubMedAPIKey)
	}
	return f.Config.PubMedIDConvURL + "?" + q.Encode()
}

// LookupIdentifiers holt PMCID und DOI zu einer PMID. Unbekannte PMIDs sind kein Fehler.
func (f *Fetcher) LookupIdentifiers(ctx context.Context, pmid string) (models.IdentifierFields, error) {
	out := models.IdentifierFields{PMID: pmid}
	log := f.Logger.With(zap.String("pmid", pmid))
	reqURL := f.idconvURL(pmid)
	log.Debug("Rufe ID Converter URL auf", zap.String("url", reqURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return out, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("idconv failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var conv IDConvResponse
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return out, fmt.Errorf("decode idconv response: %w", err)
	}

	for _, rec := range conv.Records {
		if rec.PMID != pmid {
			continue
		}
		if rec.Status == "error" {
			log.Debug("PMID dem ID Converter unbekannt", zap.String("errmsg", rec.ErrMsg))
			return out, nil
		}
		out.PMCID = strings.TrimSpace(rec.PMCID)
		out.DOI = strings.TrimSpace(rec.DOI)
		log.Debug("Kennungen über ID Converter gefunden", zap.String("doi", out.DOI), zap.String("pmcid", out.PMCID))
		return out, nil
	}
	return out, nil
}
