package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dsst-etl/dbctx"
	"dsst-etl/models"
	"dsst-etl/testutil"
)

type repos struct {
	db          *gorm.DB
	documents   *DocumentRepo
	provenance  *ProvenanceRepo
	identifiers *IdentifierRepo
	analyses    *AnalysisRepo
	dbc         dbctx.Context
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return &repos{
		db:          db,
		documents:   NewDocumentRepo(db, log),
		provenance:  NewProvenanceRepo(db, log),
		identifiers: NewIdentifierRepo(db, log),
		analyses:    NewAnalysisRepo(db, log),
		dbc:         dbctx.Context{Ctx: context.Background()},
	}
}

func (r *repos) run(t *testing.T) *models.Provenance {
	t.Helper()
	p := &models.Provenance{PipelineName: "S3 Inventory Sync", Version: "test"}
	require.NoError(t, r.provenance.CreateRun(r.dbc, p))
	return p
}

func hashOf(c byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func TestCreateDocumentAndWork(t *testing.T) {
	r := newRepos(t)
	prov := r.run(t)

	doc, work, err := r.documents.CreateDocumentAndWork(r.dbc, hashOf('a'), "s3://dsst-pdfs/a.pdf", prov.ID)
	require.NoError(t, err)

	assert.NotZero(t, doc.ID)
	require.NotNil(t, doc.WorkID)
	assert.Equal(t, work.ID, *doc.WorkID)
	assert.Equal(t, doc.ID, work.InitialDocumentID)
	assert.Equal(t, doc.ID, work.PrimaryDocumentID)
	assert.Equal(t, prov.ID, *work.ProvenanceID)

	stored, err := r.documents.FindByHash(r.dbc, hashOf('a'))
	require.NoError(t, err)
	assert.Equal(t, work.ID, *stored.WorkID)

	_, _, err = r.documents.CreateDocumentAndWork(r.dbc, hashOf('a'), "s3://dsst-pdfs/copy.pdf", prov.ID)
	assert.Error(t, err, "content_hash is unique")
}

func TestExistingHashesReportsAnalysisState(t *testing.T) {
	r := newRepos(t)
	prov := r.run(t)

	docA, workA, err := r.documents.CreateDocumentAndWork(r.dbc, hashOf('a'), "s3://dsst-pdfs/a.pdf", prov.ID)
	require.NoError(t, err)
	_, _, err = r.documents.CreateDocumentAndWork(r.dbc, hashOf('b'), "s3://dsst-pdfs/b.pdf", prov.ID)
	require.NoError(t, err)
	for range 2 {
		require.NoError(t, r.analyses.Persist(r.dbc, &models.AnalysisResult{Article: "a.txt"}, workA.ID, docA.ID, prov.ID))
	}

	index, err := r.documents.ExistingHashes(r.dbc)
	require.NoError(t, err)

	require.Len(t, index, 2)
	assert.True(t, index.Has(hashOf('a')))
	assert.False(t, index.Has(hashOf('c')))
	assert.True(t, index[hashOf('a')].HasAnalysis)
	assert.False(t, index[hashOf('b')].HasAnalysis)
	assert.Equal(t, "s3://dsst-pdfs/b.pdf", index[hashOf('b')].StorageURI)
	assert.Equal(t, docA.ID, index[hashOf('a')].DocumentID)
}

func TestDeleteDocumentCascades(t *testing.T) {
	r := newRepos(t)
	prov := r.run(t)

	doc, work, err := r.documents.CreateDocumentAndWork(r.dbc, hashOf('a'), "s3://dsst-pdfs/a.pdf", prov.ID)
	require.NoError(t, err)
	_, err = r.identifiers.Attach(r.dbc, doc.ID, prov.ID, models.IdentifierFields{PMID: "1"}, false)
	require.NoError(t, err)
	require.NoError(t, r.analyses.Persist(r.dbc, &models.AnalysisResult{Article: "a.txt"}, work.ID, doc.ID, prov.ID))

	// Ein zweites Document hängt am selben Work.
	other, _, err := r.documents.CreateDocumentAndWork(r.dbc, hashOf('b'), "s3://dsst-pdfs/b.pdf", prov.ID)
	require.NoError(t, err)
	require.NoError(t, r.db.Model(other).Update("work_id", work.ID).Error)

	deleted, err := r.documents.DeleteDocument(r.dbc, hashOf('a'))
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.EqualValues(t, 1, testutil.Count(t, r.db, &models.Document{}))
	assert.EqualValues(t, 1, testutil.Count(t, r.db, &models.Work{}), "work of b remains")
	assert.EqualValues(t, 0, testutil.Count(t, r.db, &models.Identifier{}))
	assert.EqualValues(t, 0, testutil.Count(t, r.db, &models.AnalysisResult{}))
	assert.EqualValues(t, 1, testutil.Count(t, r.db, &models.Provenance{}), "provenance is never deleted")

	remaining, err := r.documents.FindByHash(r.dbc, hashOf('b'))
	require.NoError(t, err)
	assert.Nil(t, remaining.WorkID)

	deleted, err = r.documents.DeleteDocument(r.dbc, hashOf('a'))
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDetails(t *testing.T) {
	r := newRepos(t)
	prov := r.run(t)
	doc, work, err := r.documents.CreateDocumentAndWork(r.dbc, hashOf('a'), "s3://dsst-pdfs/a.pdf", prov.ID)
	require.NoError(t, err)
	_, err = r.identifiers.Attach(r.dbc, doc.ID, prov.ID, models.IdentifierFields{PMID: "1", DOI: "10.1/x"}, false)
	require.NoError(t, err)
	require.NoError(t, r.analyses.Persist(r.dbc, &models.AnalysisResult{Article: "a.txt", IsOpenData: true}, work.ID, doc.ID, prov.ID))

	details, err := r.documents.Details(r.dbc, hashOf('a'))
	require.NoError(t, err)
	assert.Equal(t, doc.ID, details.Document.ID)
	require.NotNil(t, details.Work)
	assert.Equal(t, work.ID, details.Work.ID)
	require.Len(t, details.Identifiers, 1)
	assert.Equal(t, "10.1/x", *details.Identifiers[0].DOI)
	require.Len(t, details.Analyses, 1)
	assert.True(t, details.Analyses[0].IsOpenData)

	_, err = r.documents.Details(r.dbc, hashOf('z'))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDeleteDocumentInsideCallerTransaction(t *testing.T) {
	r := newRepos(t)
	prov := r.run(t)
	_, _, err := r.documents.CreateDocumentAndWork(r.dbc, hashOf('a'), "s3://dsst-pdfs/a.pdf", prov.ID)
	require.NoError(t, err)

	err = r.db.Transaction(func(tx *gorm.DB) error {
		deleted, err := r.documents.DeleteDocument(dbctx.Context{Ctx: context.Background(), Tx: tx}, hashOf('a'))
		require.NoError(t, err)
		require.True(t, deleted)
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	assert.EqualValues(t, 1, testutil.Count(t, r.db, &models.Document{}), "outer rollback undoes the cascade")
}
