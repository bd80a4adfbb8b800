package services

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"dsst-etl/config"
	"dsst-etl/dbctx"
	"dsst-etl/models"
	"dsst-etl/repository"
)

// Version wird beim Build per -ldflags "-X dsst-etl/services.Version=..." gesetzt.
var Version = "dev"

// ComputeContextID identifiziert Host und Benutzer eines Laufs.
func ComputeContextID(hostname, username string) string {
	sum := sha256.Sum256([]byte(hostname + "_" + username))
	return hex.EncodeToString(sum[:])[:16]
}

// NewRunProvenance füllt einen (noch nicht gespeicherten) Provenance-Eintrag.
func NewRunProvenance(cfg *config.Config, pipelineName, comment string) models.Provenance {
	hostname := cfg.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	username := cfg.Username
	if username == "" {
		username = os.Getenv("USER")
	}
	return models.Provenance{
		PipelineName:   pipelineName,
		Version:        Version,
		ComputeContext: ComputeContextID(hostname, username),
		Personnel:      hostname,
		Comment:        comment,
	}
}

// provenanceTracker legt die Provenance eines Laufs erst in der ersten schreibenden
// Transaktion an. Wird diese zurückgerollt, verfällt auch die Provenance.
type provenanceTracker struct {
	repo      *repository.ProvenanceRepo
	template  models.Provenance
	committed *models.Provenance
	pending   *models.Provenance
}

func newProvenanceTracker(repo *repository.ProvenanceRepo, template models.Provenance) *provenanceTracker {
	return &provenanceTracker{repo: repo, template: template}
}

// ensure muss innerhalb der Item-Transaktion aufgerufen werden.
func (t *provenanceTracker) ensure(dbc dbctx.Context) (*models.Provenance, error) {
	if t.committed != nil {
		return t.committed, nil
	}
	if t.pending != nil {
		return t.pending, nil
	}
	p := t.template
	if err := t.repo.CreateRun(dbc, &p); err != nil {
		return nil, err
	}
	t.pending = &p
	return t.pending, nil
}

// settle wird nach Commit (ok) oder Rollback (!ok) der Transaktion aufgerufen.
func (t *provenanceTracker) settle(ok bool) {
	if t.pending == nil {
		return
	}
	if ok {
		t.committed = t.pending
	}
	t.pending = nil
}

// ID liefert 0, solange keine Provenance committed ist.
func (t *provenanceTracker) ID() uint {
	if t.committed == nil {
		return 0
	}
	return t.committed.ID
}
