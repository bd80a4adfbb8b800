package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsst-etl/models"
	"dsst-etl/testutil"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func TestUploadStoresAndRecordsFiles(t *testing.T) {
	db := testutil.DB(t)
	store := testutil.NewMemoryStore("dsst-pdfs")
	svc := NewUploadService(testConfig(), db, store, testutil.Logger(t))

	dir := writeFiles(t, map[string]string{
		"12345678.pdf": sharedPDF,
		"copy.pdf":     sharedPDF,
		"other.pdf":    otherPDF,
		"empty.pdf":    "",
		"readme.md":    "ignored",
	})
	metadata := writeMetadata(t, `{"g": {"pdfs": [{"filepath": "12345678.pdf", "PMID": 12345678, "DOI": "10.1000/a"}]}}`)

	result, err := svc.Run(context.Background(), UploadRequest{Dir: dir, MetadataFile: metadata, Comment: "manual batch"})
	require.NoError(t, err)

	assert.Equal(t, []string{"12345678.pdf", "other.pdf"}, result.Successful)
	assert.Equal(t, []string{"copy.pdf"}, result.Skipped)
	assert.Equal(t, []string{"empty.pdf"}, result.Failed)
	assert.Equal(t, []string{"pdfs/12345678.pdf", "pdfs/other.pdf"}, store.Keys())

	assert.EqualValues(t, 2, testutil.Count(t, db, &models.Document{}))
	assert.EqualValues(t, 1, testutil.Count(t, db, &models.Identifier{}), "no metadata entry, no identifier")

	var prov models.Provenance
	require.NoError(t, db.First(&prov, result.ProvenanceID).Error)
	assert.Equal(t, UploadPipelineName, prov.PipelineName)
	assert.Equal(t, "manual batch", prov.Comment)

	var doc models.Document
	require.NoError(t, db.Where("storage_uri = ?", "s3://dsst-pdfs/pdfs/12345678.pdf").First(&doc).Error)
	var ident models.Identifier
	require.NoError(t, db.Where("document_id = ?", doc.ID).First(&ident).Error)
	assert.Equal(t, "10.1000/a", *ident.DOI)
}

func TestUploadIsPMIDsCreatesEmptyIdentifiers(t *testing.T) {
	db := testutil.DB(t)
	svc := NewUploadService(testConfig(), db, testutil.NewMemoryStore("dsst-pdfs"), testutil.Logger(t))
	dir := writeFiles(t, map[string]string{"a.pdf": sharedPDF})

	result, err := svc.Run(context.Background(), UploadRequest{Dir: dir, IsPMIDs: true})
	require.NoError(t, err)

	assert.Len(t, result.Successful, 1)
	var ident models.Identifier
	require.NoError(t, db.First(&ident).Error)
	assert.Nil(t, ident.PMID)
	assert.Nil(t, ident.DOI)
}

func TestUploadSkipsKnownContentAcrossRuns(t *testing.T) {
	db := testutil.DB(t)
	svc := NewUploadService(testConfig(), db, testutil.NewMemoryStore("dsst-pdfs"), testutil.Logger(t))
	dir := writeFiles(t, map[string]string{"a.pdf": sharedPDF})

	_, err := svc.Run(context.Background(), UploadRequest{Dir: dir})
	require.NoError(t, err)
	result, err := svc.Run(context.Background(), UploadRequest{Dir: dir})
	require.NoError(t, err)

	assert.Empty(t, result.Successful)
	assert.Equal(t, []string{"a.pdf"}, result.Skipped)
	assert.Zero(t, result.ProvenanceID)
	assert.EqualValues(t, 1, testutil.Count(t, db, &models.Provenance{}))
}

func TestUploadEmptyDirectory(t *testing.T) {
	svc := NewUploadService(testConfig(), testutil.DB(t), testutil.NewMemoryStore("dsst-pdfs"), testutil.Logger(t))

	result, err := svc.Run(context.Background(), UploadRequest{Dir: t.TempDir(), MetadataFile: "does-not-matter.json"})
	require.NoError(t, err)
	assert.Empty(t, result.Successful)
	assert.Empty(t, result.Failed)
}
