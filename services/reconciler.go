package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dsst-etl/config"
	"dsst-etl/dbctx"
	"dsst-etl/models"
	"dsst-etl/providers"
	"dsst-etl/repository"
	"dsst-etl/storage"
)

// RunState ist der Zustand eines Abgleichs.
type RunState string

const (
	StateStart   RunState = "Start"
	StateListing RunState = "Listing"
	StateSweep   RunState = "Sweep"
	StateDone    RunState = "Done"
	StateFailed  RunState = "Failed"
)

// RunSummary fasst einen Abgleich zusammen. Wird auch über GET /runs/last ausgeliefert.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	State        RunState  `json:"state"`
	Bucket       string    `json:"bucket"`
	Prefix       string    `json:"prefix"`
	Policy       string    `json:"policy"`
	ProvenanceID uint      `json:"provenance_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`

	Listed           int `json:"listed"`
	SkippedSuffix    int `json:"skipped_suffix"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	Created          int `json:"created"`
	Failed           int `json:"failed"`
	HashingFailed    int `json:"hashing_failed"`
	AnalysisFailed   int `json:"analysis_failed"`
	AnalysisRetried  int `json:"analysis_retried"`
	Swept            int `json:"swept"`
	SweepFailed      int `json:"sweep_failed"`
	// SweepSkipped ist gesetzt, wenn unlesbare Objekte das Löschen in diesem Lauf verhindert haben.
	SweepSkipped bool `json:"sweep_skipped,omitempty"`

	Error string `json:"error,omitempty"`
}

// ReconcileService gleicht den Object Store mit der Datenbank ab.
type ReconcileService struct {
	Config      *config.Config
	DB          *gorm.DB
	Store       storage.ObjectStore
	Analyzer    providers.Analyzer
	Lookup      providers.IdentifierLookup // optional, ergänzt DOI/PMCID zu einer PMID
	Identifiers IdentifierResolver
	Locker      RunLocker
	Logger      *zap.Logger

	documents   *repository.DocumentRepo
	provenance  *repository.ProvenanceRepo
	identifiers *repository.IdentifierRepo
	analyses    *repository.AnalysisRepo

	mu      sync.Mutex
	running bool
	last    *RunSummary
}

// NewReconcileService erstellt den Service. Der Identifier-Resolver wird aus der Konfiguration
// abgeleitet, ohne Locker wird nicht gesperrt.
func NewReconcileService(cfg *config.Config, db *gorm.DB, store storage.ObjectStore, analyzer providers.Analyzer, logger *zap.Logger) (*ReconcileService, error) {
	resolver, err := NewIdentifierResolver(cfg)
	if err != nil {
		return nil, err
	}
	return &ReconcileService{
		Config:      cfg,
		DB:          db,
		Store:       store,
		Analyzer:    analyzer,
		Identifiers: resolver,
		Locker:      NoopLocker{},
		Logger:      logger,
		documents:   repository.NewDocumentRepo(db, logger),
		provenance:  repository.NewProvenanceRepo(db, logger),
		identifiers: repository.NewIdentifierRepo(db, logger),
		analyses:    repository.NewAnalysisRepo(db, logger),
	}, nil
}

// LastSummary liefert eine Kopie der Zusammenfassung des letzten Laufs oder nil.
func (s *ReconcileService) LastSummary() *RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	summary := *s.last
	return &summary
}

// Running meldet, ob in diesem Prozess gerade ein Lauf aktiv ist.
func (s *ReconcileService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ReconcileService) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// finish misst die Laufzeit und merkt sich summary als letzten Lauf. claimed gibt den Service wieder frei.
func (s *ReconcileService) finish(summary *RunSummary, claimed bool) {
	runDuration.WithLabelValues(string(summary.State)).Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	s.mu.Lock()
	defer s.mu.Unlock()
	if claimed {
		s.running = false
	}
	s.last = summary
}

// Run führt einen vollständigen Abgleich aus. Fehler einzelner Objekte brechen den Lauf nicht ab;
// ein Fehler wird nur für Konfiguration, Sperre, Snapshot oder Listing zurückgegeben.
func (s *ReconcileService) Run(ctx context.Context) (*RunSummary, error) {
	summary, err := s.prepare()
	if err != nil {
		return summary, err
	}
	err = s.execute(ctx, summary)
	return summary, err
}

// Start startet einen Abgleich im Hintergrund und liefert dessen run_id.
// Läuft bereits ein Abgleich, kommt ErrRunInProgress zurück.
func (s *ReconcileService) Start(ctx context.Context) (string, error) {
	summary, err := s.prepare()
	if err != nil {
		return "", err
	}
	go func() {
		_ = s.execute(ctx, summary)
	}()
	return summary.RunID, nil
}

// prepare prüft die Konfiguration und markiert den Service als laufend.
func (s *ReconcileService) prepare() (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		State:     StateStart,
		Policy:    s.Config.IngestionPolicy,
		Prefix:    s.Config.S3Prefix,
		StartedAt: time.Now().UTC(),
	}
	if s.Store != nil {
		summary.Bucket = s.Store.Bucket()
	}
	if err := s.Config.Validate(); err != nil {
		s.Logger.Error("Invalid configuration, reconciliation not started", zap.String("run_id", summary.RunID), zap.Error(err))
		s.finish(s.fail(summary, err), false)
		return summary, err
	}
	if !s.begin() {
		return nil, fmt.Errorf("%w: %s/%s", ErrRunInProgress, summary.Bucket, summary.Prefix)
	}
	return summary, nil
}

func (s *ReconcileService) execute(ctx context.Context, summary *RunSummary) error {
	log := s.Logger.With(
		zap.String("run_id", summary.RunID),
		zap.String("bucket", summary.Bucket),
		zap.String("prefix", summary.Prefix),
		zap.String("policy", summary.Policy),
	)

	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("dsst-etl:reconcile:%s/%s", summary.Bucket, summary.Prefix))
	if err != nil {
		log.Warn("Could not acquire run lock", zap.Error(err))
		s.finish(s.fail(summary, err), true)
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	log.Info("Starting reconciliation")
	err = s.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		r := &run{
			s:          s,
			ctx:        ctx,
			conn:       conn,
			log:        log,
			summary:    summary,
			seen:       make(map[string]struct{}),
			provenance: newProvenanceTracker(s.provenance, NewRunProvenance(s.Config, s.Config.PipelineName, s.Config.ProvenanceComment)),
		}
		return r.execute()
	})
	if err != nil {
		s.fail(summary, err)
		log.Error("Reconciliation failed", zap.Error(err), zap.Int("created", summary.Created), zap.Int("failed", summary.Failed))
	} else {
		summary.State = StateDone
		summary.FinishedAt = time.Now().UTC()
		log.Info("Reconciliation finished",
			zap.Int("listed", summary.Listed),
			zap.Int("created", summary.Created),
			zap.Int("skipped_duplicate", summary.SkippedDuplicate),
			zap.Int("failed", summary.Failed),
			zap.Int("analysis_failed", summary.AnalysisFailed),
			zap.Int("swept", summary.Swept),
			zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
		)
	}
	s.finish(summary, true)
	return err
}

func (s *ReconcileService) fail(summary *RunSummary, err error) *RunSummary {
	summary.State = StateFailed
	summary.Error = err.Error()
	summary.FinishedAt = time.Now().UTC()
	return summary
}

// run hält den Zustand eines einzelnen Abgleichs. Alle Datenbankzugriffe laufen über conn.
type run struct {
	s       *ReconcileService
	ctx     context.Context
	conn    *gorm.DB
	log     *zap.Logger
	summary *RunSummary

	known      repository.HashIndex
	seen       map[string]struct{}
	provenance *provenanceTracker
}

func (r *run) dbc(tx *gorm.DB) dbctx.Context {
	return dbctx.Context{Ctx: r.ctx, Tx: tx}
}

func (r *run) execute() error {
	known, err := r.s.documents.ExistingHashes(r.dbc(r.conn))
	if err != nil {
		return err
	}
	r.known = known
	r.log.Info("Loaded known content hashes", zap.Int("count", len(known)))

	r.summary.State = StateListing
	for obj, err := range r.s.Store.List(r.ctx, r.s.Config.S3Prefix) {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStoreListing, err)
		}
		if err := r.ctx.Err(); err != nil {
			return err
		}
		r.process(obj)
	}

	if r.s.Config.IngestionPolicy == config.PolicySyncWithDelete {
		r.summary.State = StateSweep
		r.sweep()
	}
	r.summary.ProvenanceID = r.provenance.ID()
	return nil
}

func (r *run) process(obj storage.ObjectInfo) {
	r.summary.Listed++
	if !strings.HasSuffix(obj.Key, r.s.Config.FileSuffix) {
		r.summary.SkippedSuffix++
		return
	}
	log := r.log.With(zap.String("key", obj.Key))
	uri := r.s.Store.URI(obj.Key)

	payload, err := r.s.Store.Get(r.ctx, obj.Key)
	var hash string
	if err == nil {
		hash, err = HashBytes(payload)
	} else {
		err = fmt.Errorf("%w: %w", ErrHashing, err)
	}
	if err != nil {
		log.Error("Failed to read object, skipping", zap.Error(err))
		r.summary.Failed++
		r.summary.HashingFailed++
		ingestionFailures.WithLabelValues("hashing").Inc()
		return
	}
	log = log.With(zap.String("hash", hash))

	if _, dup := r.seen[hash]; dup {
		log.Debug("Content already seen in this run")
		r.summary.SkippedDuplicate++
		documentsSkipped.Inc()
		return
	}
	r.seen[hash] = struct{}{}

	if known, ok := r.known[hash]; ok {
		r.summary.SkippedDuplicate++
		documentsSkipped.Inc()
		if r.s.Config.RetryMissingAnalysis && !known.HasAnalysis && known.WorkID != nil {
			r.retryAnalysis(obj.Key, payload, known, log)
		}
		return
	}

	if !r.ingest(obj.Key, uri, hash, payload, log) {
		// Ein späteres Objekt mit gleichem Inhalt darf es erneut versuchen.
		delete(r.seen, hash)
	}
}

// ingest legt Document, Work und Identifier in einer Transaktion an und analysiert danach.
func (r *run) ingest(key, uri, hash string, payload []byte, log *zap.Logger) bool {
	fields, createEmpty := r.s.Identifiers.Resolve(key)
	fields = r.enrich(fields, log)

	var doc *models.Document
	var work *models.Work
	err := r.conn.Transaction(func(tx *gorm.DB) error {
		prov, err := r.provenance.ensure(r.dbc(tx))
		if err != nil {
			return err
		}
		if doc, work, err = r.s.documents.CreateDocumentAndWork(r.dbc(tx), hash, uri, prov.ID); err != nil {
			return err
		}
		_, err = r.s.identifiers.Attach(r.dbc(tx), doc.ID, prov.ID, fields, createEmpty)
		return err
	})
	r.provenance.settle(err == nil)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrIngestionTransaction, err)
		log.Error("Failed to ingest object, rolled back", zap.Error(err))
		r.summary.Failed++
		ingestionFailures.WithLabelValues("transaction").Inc()
		return false
	}

	r.summary.Created++
	documentsIngested.Inc()
	log.Info("Ingested new document", zap.Uint("document_id", doc.ID), zap.Uint("work_id", work.ID))

	r.analyze(key, payload, work.ID, doc.ID, log)
	return true
}

func (r *run) enrich(fields models.IdentifierFields, log *zap.Logger) models.IdentifierFields {
	if r.s.Lookup == nil || fields.PMID == "" || (fields.DOI != "" && fields.PMCID != "") {
		return fields
	}
	found, err := r.s.Lookup.LookupIdentifiers(r.ctx, fields.PMID)
	if err != nil {
		log.Warn("Identifier lookup failed, keeping PMID only", zap.String("pmid", fields.PMID), zap.Error(err))
		return fields
	}
	if fields.DOI == "" {
		fields.DOI = found.DOI
	}
	if fields.PMCID == "" {
		fields.PMCID = found.PMCID
	}
	return fields
}

func (r *run) retryAnalysis(key string, payload []byte, known repository.KnownDocument, log *zap.Logger) {
	log.Info("Retrying analysis for document without metrics", zap.Uint("document_id", known.DocumentID))
	if r.analyze(key, payload, *known.WorkID, known.DocumentID, log) {
		r.summary.AnalysisRetried++
	}
}

// analyze ruft den Analysedienst auf und speichert das Ergebnis in einer eigenen Transaktion.
// Ein Fehlschlag lässt das bereits gespeicherte Document unberührt.
func (r *run) analyze(key string, payload []byte, workID, documentID uint, log *zap.Logger) bool {
	result, err := r.s.Analyzer.Analyze(r.ctx, path.Base(key), payload)
	if err != nil {
		r.analysisFailed(log, err)
		return false
	}

	err = r.conn.Transaction(func(tx *gorm.DB) error {
		prov, err := r.provenance.ensure(r.dbc(tx))
		if err != nil {
			return err
		}
		return r.s.analyses.Persist(r.dbc(tx), result, workID, documentID, prov.ID)
	})
	r.provenance.settle(err == nil)
	if err != nil {
		r.analysisFailed(log, fmt.Errorf("persist analysis: %w", err))
		return false
	}
	log.Debug("Stored analysis result", zap.String("analyzer", r.s.Analyzer.Name()), zap.Bool("is_open_data", result.IsOpenData))
	return true
}

func (r *run) analysisFailed(log *zap.Logger, err error) {
	log.Error("Analysis failed, document kept without metrics", zap.Error(err))
	r.summary.AnalysisFailed++
	analysisFailures.Inc()
}

// sweep entfernt Documents, deren Inhalt in diesem Lauf nicht mehr gesehen wurde.
// Nach einem Lesefehler wird nichts gelöscht: der Hash des unlesbaren Objekts ist unbekannt.
func (r *run) sweep() {
	hashes := make([]string, 0, len(r.known))
	for hash := range r.known {
		if _, ok := r.seen[hash]; !ok {
			hashes = append(hashes, hash)
		}
	}
	sort.Strings(hashes)

	if r.summary.HashingFailed > 0 && len(hashes) > 0 {
		r.log.Warn("Objects were unreadable in this run, skipping sweep",
			zap.Int("unreadable", r.summary.HashingFailed),
			zap.Int("candidates", len(hashes)),
		)
		r.summary.SweepSkipped = true
		return
	}

	for _, hash := range hashes {
		known := r.known[hash]
		log := r.log.With(zap.String("hash", hash), zap.String("storage_uri", known.StorageURI))
		deleted, err := r.s.documents.DeleteDocument(r.dbc(r.conn), hash)
		if err != nil {
			log.Error("Failed to delete vanished document", zap.Error(err))
			r.summary.SweepFailed++
			continue
		}
		if deleted {
			log.Info("Deleted document whose object disappeared")
			r.summary.Swept++
			documentsSwept.Inc()
		}
	}
}

// IsRunInProgress meldet, ob err auf einen bereits laufenden Abgleich zurückgeht.
func IsRunInProgress(err error) bool {
	return errors.Is(err, ErrRunInProgress)
}
