package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ObjectStore:      ObjectStoreS3,
		S3BucketName:     "dsst-pdfs",
		IngestionPolicy:  PolicySyncWithDelete,
		IdentifierSource: IdentifierFromFilename,
		FileSuffix:       ".pdf",
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("S3_BUCKET_NAME", "dsst-pdfs")
	t.Setenv("ODDPUB_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dsst-pdfs", cfg.S3BucketName)
	assert.Equal(t, "http://localhost:8071", cfg.OddpubHostAPI)
	assert.Equal(t, 90*time.Second, cfg.OddpubTimeout)
	assert.Equal(t, PolicySyncWithDelete, cfg.IngestionPolicy)
	assert.Equal(t, IdentifierFromFilename, cfg.IdentifierSource)
	assert.Equal(t, ".pdf", cfg.FileSuffix)
	assert.Equal(t, LookupEuropePMC, cfg.IdentifierLookup)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, time.Second, cfg.DBSlowThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestValidateMissingBucket(t *testing.T) {
	cfg := validConfig()
	cfg.S3BucketName = "  "

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "S3_BUCKET_NAME")
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"policy", func(c *Config) { c.IngestionPolicy = "mirror" }},
		{"identifier source", func(c *Config) { c.IdentifierSource = "from-title" }},
		{"object store", func(c *Config) { c.ObjectStore = "ftp" }},
		{"metadata without file", func(c *Config) { c.IdentifierSource = IdentifierFromMetadata }},
		{"empty suffix", func(c *Config) { c.FileSuffix = "" }},
		{"unknown lookup", func(c *Config) { c.EnrichIdentifiers = true; c.IdentifierLookup = "crossref" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "dsst", DBPort: 5433, DBSSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=dsst port=5433 sslmode=disable", cfg.DSN())
}
