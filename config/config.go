package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrConfiguration kennzeichnet fehlende oder ungültige Pflichtkonfiguration.
var ErrConfiguration = errors.New("configuration error")

// Ingestion-Policies.
const (
	PolicySyncWithDelete = "sync-with-delete"
	PolicyAppendOnly     = "append-only"
)

// Quellen für Identifier.
const (
	IdentifierFromFilename = "from-filename-as-pmid"
	IdentifierFromMetadata = "from-metadata-file"
	IdentifierNone         = "none"
)

// Object-Store-Backends.
const (
	ObjectStoreS3  = "s3"
	ObjectStoreGCS = "gcs"
)

// Dienste zum Ergänzen von DOI und PMCID.
const (
	LookupEuropePMC = "europepmc"
	LookupPubMed    = "pubmed"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"dsst"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
	DBSlowThreshold   time.Duration `envconfig:"DB_SLOW_THRESHOLD" default:"1s"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`
	// Leer = kein periodischer Lauf
	CronSchedule string `envconfig:"CRON_SCHEDULE"`

	ObjectStore        string `envconfig:"OBJECT_STORE" default:"s3"`
	S3BucketName       string `envconfig:"S3_BUCKET_NAME"`
	S3Prefix           string `envconfig:"S3_PREFIX"`
	S3Endpoint         string `envconfig:"S3_ENDPOINT"`
	S3Region           string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey        string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey        string `envconfig:"S3_SECRET_KEY"`
	S3UsePathStyle     bool   `envconfig:"S3_USE_PATH_STYLE" default:"false"`
	GCSCredentialsFile string `envconfig:"GCS_CREDENTIALS_FILE"`

	OddpubHostAPI string        `envconfig:"ODDPUB_HOST_API" default:"http://localhost:8071"`
	OddpubTimeout time.Duration `envconfig:"ODDPUB_TIMEOUT" default:"5m"`

	IngestionPolicy      string `envconfig:"INGESTION_POLICY" default:"sync-with-delete"`
	IdentifierSource     string `envconfig:"IDENTIFIER_SOURCE" default:"from-filename-as-pmid"`
	MetadataFile         string `envconfig:"METADATA_FILE"`
	IsPMIDs              bool   `envconfig:"IS_PMIDS" default:"false"`
	RetryMissingAnalysis bool   `envconfig:"RETRY_MISSING_ANALYSIS" default:"false"`
	AutoApprove          bool   `envconfig:"AUTO_APPROVE" default:"false"`
	FileSuffix           string `envconfig:"FILE_SUFFIX" default:".pdf"`

	// Provenance
	PipelineName      string `envconfig:"PIPELINE_NAME" default:"S3 Inventory Sync"`
	ProvenanceComment string `envconfig:"PROVENANCE_COMMENT"`
	Hostname          string `envconfig:"HOSTNAME"`
	Username          string `envconfig:"USERNAME"`

	// Europe PMC oder PMC ID Converter für fehlende DOI/PMCID
	EnrichIdentifiers bool   `envconfig:"ENRICH_IDENTIFIERS" default:"false"`
	IdentifierLookup  string `envconfig:"IDENTIFIER_LOOKUP" default:"europepmc"`
	EuropePMCBaseURL  string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest/search"`
	PubMedIDConvURL   string `envconfig:"PUBMED_IDCONV_URL" default:"https://www.ncbi.nlm.nih.gov/pmc/utils/idconv/v1.0/"`
	PubMedAPIKey      string `envconfig:"PUBMED_API_KEY"`
	PubMedEmail       string `envconfig:"PUBMED_EMAIL"`
	PubMedTool        string `envconfig:"PUBMED_TOOL" default:"dsst-etl"`

	RedisAddress string        `envconfig:"REDIS_ADDRESS"`
	LockTTL      time.Duration `envconfig:"LOCK_TTL" default:"30m"`

	BackupPrefix string `envconfig:"BACKUP_PREFIX" default:"backups/"`
	KeepBackups  int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// Validate prüft die Pflichtfelder, bevor irgendeine Arbeit beginnt.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.S3BucketName) == "" {
		return fmt.Errorf("%w: S3_BUCKET_NAME environment variable is not set", ErrConfiguration)
	}
	switch c.ObjectStore {
	case ObjectStoreS3, ObjectStoreGCS:
	default:
		return fmt.Errorf("%w: unknown OBJECT_STORE %q", ErrConfiguration, c.ObjectStore)
	}
	switch c.IngestionPolicy {
	case PolicySyncWithDelete, PolicyAppendOnly:
	default:
		return fmt.Errorf("%w: unknown INGESTION_POLICY %q", ErrConfiguration, c.IngestionPolicy)
	}
	switch c.IdentifierSource {
	case IdentifierFromFilename, IdentifierNone:
	case IdentifierFromMetadata:
		if c.MetadataFile == "" {
			return fmt.Errorf("%w: IDENTIFIER_SOURCE=%s requires METADATA_FILE", ErrConfiguration, c.IdentifierSource)
		}
	default:
		return fmt.Errorf("%w: unknown IDENTIFIER_SOURCE %q", ErrConfiguration, c.IdentifierSource)
	}
	if c.FileSuffix == "" {
		return fmt.Errorf("%w: FILE_SUFFIX must not be empty", ErrConfiguration)
	}
	if c.EnrichIdentifiers {
		switch c.IdentifierLookup {
		case LookupEuropePMC, LookupPubMed:
		default:
			return fmt.Errorf("%w: unknown IDENTIFIER_LOOKUP %q", ErrConfiguration, c.IdentifierLookup)
		}
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
