package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dsst-etl/testutil"
)

func TestBackupKey(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "backups/backup-2024-03-09T06-05-01Z.sql.gz", backupKey("backups/", ts))
}

func TestRotateBackupsKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore("dsst-pdfs")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 6 {
		require.NoError(t, store.Put(ctx, backupKey("backups/", start.AddDate(0, 0, i)), []byte("dump")))
	}
	require.NoError(t, store.Put(ctx, "pdfs/12345678.pdf", []byte("%PDF")))
	require.NoError(t, store.Put(ctx, "backups/README", []byte("keep me")))

	require.NoError(t, rotateBackups(ctx, store, "backups/", 4, zaptest.NewLogger(t)))

	assert.Equal(t, []string{
		"backups/README",
		"backups/backup-2024-01-03T00-00-00Z.sql.gz",
		"backups/backup-2024-01-04T00-00-00Z.sql.gz",
		"backups/backup-2024-01-05T00-00-00Z.sql.gz",
		"backups/backup-2024-01-06T00-00-00Z.sql.gz",
		"pdfs/12345678.pdf",
	}, store.Keys())
}

func TestRotateBackupsListError(t *testing.T) {
	store := testutil.NewMemoryStore("dsst-pdfs")
	store.ListErr = errors.New("access denied")

	err := rotateBackups(context.Background(), store, "backups/", 4, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRotateBackupsRejectsNegativeKeep(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore("dsst-pdfs")
	require.NoError(t, store.Put(ctx, backupKey("backups/", time.Now()), []byte("dump")))

	err := rotateBackups(ctx, store, "backups/", -1, zaptest.NewLogger(t))

	assert.Error(t, err)
	assert.Len(t, store.Keys(), 1, "nothing deleted")
}
