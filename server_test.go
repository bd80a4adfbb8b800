package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dsst-etl/config"
	"dsst-etl/models"
	"dsst-etl/providers"
	"dsst-etl/repository"
	"dsst-etl/services"
	"dsst-etl/testutil"
)

// blockingAnalyzer hält jede Analyse an, bis release geschlossen wird.
type blockingAnalyzer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAnalyzer) Name() string { return "blocking" }

func (b *blockingAnalyzer) Analyze(ctx context.Context, filename string, payload []byte) (*models.AnalysisResult, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return &models.AnalysisResult{Article: filename + ".txt"}, nil
}

type testServer struct {
	cfg    *config.Config
	db     *gorm.DB
	store  *testutil.MemoryStore
	svc    *services.ReconcileService
	router *gin.Engine
}

func newTestServer(t *testing.T, analyzer providers.Analyzer) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		ObjectStore:      config.ObjectStoreS3,
		S3BucketName:     "dsst-pdfs",
		IngestionPolicy:  config.PolicySyncWithDelete,
		IdentifierSource: config.IdentifierFromFilename,
		FileSuffix:       ".pdf",
		PipelineName:     "S3 Inventory Sync",
		APISecretKey:     "secret",
	}
	db := testutil.DB(t)
	store := testutil.NewMemoryStore(cfg.S3BucketName)
	log := testutil.Logger(t)
	svc, err := services.NewReconcileService(cfg, db, store, analyzer, log)
	require.NoError(t, err)

	return &testServer{
		cfg:    cfg,
		db:     db,
		store:  store,
		svc:    svc,
		router: newRouter(context.Background(), cfg, db, svc, log),
	}
}

func (s *testServer) do(method, path string, authorized bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authorized {
		req.Header.Set("X-API-KEY", "secret")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !s.svc.Running() && s.svc.LastSummary() != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeAnalyzer())

	w := s.do(http.MethodGet, "/healthz", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeAnalyzer())

	for _, path := range []string{"/runs/last", "/metrics"} {
		w := s.do(http.MethodGet, path, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := s.do(http.MethodPost, "/reconcile", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, s.svc.Running())
}

func TestReconcileEndpointRunsInBackground(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeAnalyzer())
	require.NoError(t, s.store.Put(context.Background(), "12345678.pdf", []byte("%PDF-1.4 api")))

	w := s.do(http.MethodGet, "/runs/last", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/reconcile", true)
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.NotEmpty(t, accepted.RunID)

	s.waitIdle(t)

	w = s.do(http.MethodGet, "/runs/last", true)
	require.Equal(t, http.StatusOK, w.Code)
	var summary services.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, accepted.RunID, summary.RunID)
	assert.Equal(t, services.StateDone, summary.State)
	assert.Equal(t, 1, summary.Created)
}

func TestReconcileEndpointConflictWhileRunning(t *testing.T) {
	analyzer := &blockingAnalyzer{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestServer(t, analyzer)
	require.NoError(t, s.store.Put(context.Background(), "12345678.pdf", []byte("%PDF-1.4 slow")))

	w := s.do(http.MethodPost, "/reconcile", true)
	require.Equal(t, http.StatusAccepted, w.Code)

	select {
	case <-analyzer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis did not start")
	}

	w = s.do(http.MethodPost, "/reconcile", true)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(analyzer.release)
	s.waitIdle(t)
	assert.Equal(t, services.StateDone, s.svc.LastSummary().State)
}

func TestDocumentEndpoint(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeAnalyzer())
	payload := []byte("%PDF-1.4 details")
	require.NoError(t, s.store.Put(context.Background(), "12345678.pdf", payload))
	_, err := s.svc.Run(context.Background())
	require.NoError(t, err)

	hash, err := services.HashBytes(payload)
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/documents/"+hash, true)
	require.Equal(t, http.StatusOK, w.Code)
	var details repository.DocumentDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, hash, details.Document.ContentHash)
	require.NotNil(t, details.Work)
	require.Len(t, details.Identifiers, 1)
	assert.Equal(t, "12345678", *details.Identifiers[0].PMID)
	assert.Len(t, details.Analyses, 1)

	missing, _ := services.HashBytes([]byte("unknown"))
	w = s.do(http.MethodGet, "/documents/"+missing, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/documents/not-a-hash", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileEndpointReportsRejectedRun(t *testing.T) {
	s := newTestServer(t, testutil.NewFakeAnalyzer())
	s.cfg.IngestionPolicy = "mirror"

	w := s.do(http.MethodPost, "/reconcile", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, s.svc.Running())

	w = s.do(http.MethodGet, "/runs/last", true)
	require.Equal(t, http.StatusOK, w.Code)
	var summary services.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, services.StateFailed, summary.State)
	assert.Contains(t, summary.Error, "INGESTION_POLICY")
}
