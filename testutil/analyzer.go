package testutil

import (
	"context"
	"fmt"
	"sync"

	"dsst-etl/models"
	"dsst-etl/providers/oddpub"
)

// FakeAnalyzer liefert feste Ergebnisse und schlägt für ausgewählte Dateien fehl.
type FakeAnalyzer struct {
	// Fail: Dateiname -> HTTP-Status, den der Dienst liefern soll
	Fail map[string]int

	mu    sync.Mutex
	calls []string
}

// NewFakeAnalyzer erstellt einen Analyzer ohne Fehler.
func NewFakeAnalyzer() *FakeAnalyzer {
	return &FakeAnalyzer{Fail: map[string]int{}}
}

func (f *FakeAnalyzer) Name() string { return "fake-oddpub" }

func (f *FakeAnalyzer) Analyze(ctx context.Context, filename string, payload []byte) (*models.AnalysisResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filename)
	status := f.Fail[filename]
	f.mu.Unlock()

	if status != 0 {
		return nil, &oddpub.ServiceError{StatusCode: status, Body: "internal error"}
	}
	category := ""
	return &models.AnalysisResult{
		Article:          fmt.Sprintf("%s.txt", filename),
		IsOpenData:       len(payload)%2 == 0,
		OpenDataCategory: &category,
	}, nil
}

// Calls liefert die analysierten Dateinamen in Aufrufreihenfolge.
func (f *FakeAnalyzer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
