// Package config loads batchcore settings from a YAML file overlaid by
// BATCHCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

type Config struct {
	Version int           `yaml:"version"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Schema  SchemaConfig  `yaml:"schema"`
	Metrics MetricsConfig `yaml:"metrics"`
	Pivot   PivotConfig   `yaml:"pivot"`
}

type LogConfig struct {
	Mode     string `yaml:"mode"`
	Level    string `yaml:"level"`
	Redact   bool   `yaml:"redact"`
	HashSalt string `yaml:"hash_salt"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// SchemaConfig locates the parameter catalog inside the blob store.
type SchemaConfig struct {
	CatalogKey string `yaml:"catalog_key"`
	Program    string `yaml:"program"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// PivotConfig names the acquisition levels assigned while pivoting.
type PivotConfig struct {
	ChildLevel    string `yaml:"child_level"`
	SamplingLevel string `yaml:"sampling_level"`
}

// Default returns the settings used when no file or variable overrides them.
func Default() Config {
	return Config{
		Version: 1,
		Log:     LogConfig{Mode: "development", Level: "info", Redact: true},
		Storage: StorageConfig{Driver: StorageSQLite, SQLitePath: "batchcore.db"},
		Blob:    BlobConfig{Driver: "fs", FSRoot: "./blobdata"},
		Schema:  SchemaConfig{CatalogKey: "schemas/catalog.yaml"},
		Metrics: MetricsConfig{Namespace: "batchcore"},
	}
}

// Parse decodes YAML over the defaults.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Load reads path (optional when empty), applies the environment and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if cfg, err = Parse(b); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays BATCHCORE_* variables resolved through lookup.
//
//	BATCHCORE_LOG_MODE, BATCHCORE_LOG_LEVEL, BATCHCORE_LOG_REDACT
//	BATCHCORE_STORAGE_DRIVER: memory|sqlite|postgres
//	BATCHCORE_SQLITE_PATH, BATCHCORE_POSTGRES_DSN
//	BATCHCORE_BLOB_DRIVER: fs|s3|memory
//	BATCHCORE_BLOB_FS_ROOT
//	BATCHCORE_BLOB_S3_BUCKET, _REGION, _PREFIX, _ENDPOINT, _PATH_STYLE
//	BATCHCORE_SCHEMA_CATALOG_KEY, BATCHCORE_PROGRAM
//	BATCHCORE_METRICS_NAMESPACE
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*dst = b
		return nil
	}
	str("BATCHCORE_LOG_MODE", &c.Log.Mode)
	str("BATCHCORE_LOG_LEVEL", &c.Log.Level)
	str("BATCHCORE_LOG_HASH_SALT", &c.Log.HashSalt)
	str("BATCHCORE_STORAGE_DRIVER", &c.Storage.Driver)
	str("BATCHCORE_SQLITE_PATH", &c.Storage.SQLitePath)
	str("BATCHCORE_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("BATCHCORE_BLOB_DRIVER", &c.Blob.Driver)
	str("BATCHCORE_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BATCHCORE_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("BATCHCORE_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("BATCHCORE_BLOB_S3_PREFIX", &c.Blob.S3.Prefix)
	str("BATCHCORE_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("BATCHCORE_SCHEMA_CATALOG_KEY", &c.Schema.CatalogKey)
	str("BATCHCORE_PROGRAM", &c.Schema.Program)
	str("BATCHCORE_METRICS_NAMESPACE", &c.Metrics.Namespace)
	if err := boolean("BATCHCORE_LOG_REDACT", &c.Log.Redact); err != nil {
		return err
	}
	return boolean("BATCHCORE_BLOB_S3_PATH_STYLE", &c.Blob.S3.PathStyle)
}

// Validate checks driver names and required settings.
func (c Config) Validate() error {
	var errs []error
	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("unsupported version %d", c.Version))
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if c.Schema.CatalogKey == "" {
		errs = append(errs, errors.New("schema.catalog_key required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
