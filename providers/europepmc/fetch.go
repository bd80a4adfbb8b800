package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"dsst-etl/config"
	"dsst-etl/models"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher löst PMIDs über Europe PMC zu DOI und PMCID auf.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen Europe PMC Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "europepmc"
}

// LookupIdentifiers sucht den MEDLINE-Eintrag zur PMID. Kein Treffer ist kein Fehler.
func (f *Fetcher) LookupIdentifiers(ctx context.Context, pmid string) (models.IdentifierFields, error) {
	out := models.IdentifierFields{PMID: pmid}
	query := fmt.Sprintf("EXT_ID:%s AND SRC:MED", pmid)
	searchURL := fmt.Sprintf("%s?query=%s&format=json&resultType=lite&pageSize=1", f.Config.EuropePMCBaseURL, url.QueryEscape(query))
	log := f.Logger.With(zap.String("pmid", pmid))
	log.Debug("Rufe Europe PMC API auf", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return out, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("europepmc request failed with status: %d", resp.StatusCode)
	}

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return out, err
	}

	for _, article := range searchResponse.ResultList.Result {
		if article.PMID != pmid {
			continue
		}
		out.DOI = strings.TrimSpace(article.DOI)
		out.PMCID = strings.TrimSpace(article.PMCID)
		log.Debug("Kennungen über Europe PMC gefunden", zap.String("doi", out.DOI), zap.String("pmcid", out.PMCID))
		return out, nil
	}

	log.Debug("Kein passender Eintrag in Europe PMC gefunden.")
	return out, nil
}
