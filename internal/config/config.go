// Package config loads server settings from defaults, an optional YAML file,
// an optional .env file and TRACKY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/tracky/internal/blob"
)

// Entity store backends.
const (
	EntitiesSQL   = "sql"
	EntitiesMongo = "mongo"
)

// Config is the full server configuration.
type Config struct {
	Addr           string `yaml:"addr"`
	LogPath        string `yaml:"log_path"`
	JWTSecret      string `yaml:"jwt_secret"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	QRSize         int    `yaml:"qr_size"`

	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
}

// StorageConfig selects the databases. Users, settings and revoked tokens
// always live in the SQL database; Entities picks where entity documents and
// tracker locations go.
type StorageConfig struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	Entities      string `yaml:"entities"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

// DSN returns the connection string for the configured SQL driver.
func (s StorageConfig) DSN() string {
	if s.Driver == "postgres" {
		return s.PostgresDSN
	}
	return s.SQLitePath
}

// BlobConfig configures media storage.
type BlobConfig struct {
	Driver    string   `yaml:"driver"`
	FSRoot    string   `yaml:"fs_root"`
	PublicURL string   `yaml:"public_url"`
	S3        S3Config `yaml:"s3"`
}

// S3Config configures the S3 blob driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Store converts b into the blob package's configuration.
func (b BlobConfig) Store() blob.Config {
	return blob.Config{
		Driver:    blob.Driver(b.Driver),
		FSRoot:    b.FSRoot,
		PublicURL: b.PublicURL,
		S3: blob.S3Config{
			Bucket:          b.S3.Bucket,
			Region:          b.S3.Region,
			Endpoint:        b.S3.Endpoint,
			PathStyle:       b.S3.PathStyle,
			AccessKeyID:     b.S3.AccessKeyID,
			SecretAccessKey: b.S3.SecretAccessKey,
		},
	}
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		MaxUploadBytes: 10 << 20,
		QRSize:         256,
		Storage: StorageConfig{
			Driver:        "sqlite",
			SQLitePath:    "tracky.sqlite3",
			Entities:      EntitiesSQL,
			MongoDatabase: "tracky",
		},
		Blob: BlobConfig{
			Driver:    string(blob.DriverFilesystem),
			FSRoot:    "blobdata",
			PublicURL: "/media",
			S3:        S3Config{Region: "us-east-1"},
		},
	}
}

// Load builds the configuration. A missing YAML file or .env file is not an
// error; empty paths skip that source.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TRACKY_ADDR":                      &c.Addr,
		"TRACKY_LOG":                       &c.LogPath,
		"TRACKY_JWT_SECRET":                &c.JWTSecret,
		"TRACKY_STORAGE_DRIVER":            &c.Storage.Driver,
		"TRACKY_SQLITE_PATH":               &c.Storage.SQLitePath,
		"TRACKY_POSTGRES_DSN":              &c.Storage.PostgresDSN,
		"TRACKY_ENTITY_STORE":              &c.Storage.Entities,
		"TRACKY_MONGO_URI":                 &c.Storage.MongoURI,
		"TRACKY_MONGO_DATABASE":            &c.Storage.MongoDatabase,
		"TRACKY_BLOB_DRIVER":               &c.Blob.Driver,
		"TRACKY_BLOB_FS_ROOT":              &c.Blob.FSRoot,
		"TRACKY_BLOB_PUBLIC_URL":           &c.Blob.PublicURL,
		"TRACKY_BLOB_S3_BUCKET":            &c.Blob.S3.Bucket,
		"TRACKY_BLOB_S3_REGION":            &c.Blob.S3.Region,
		"TRACKY_BLOB_S3_ENDPOINT":          &c.Blob.S3.Endpoint,
		"TRACKY_BLOB_S3_ACCESS_KEY_ID":     &c.Blob.S3.AccessKeyID,
		"TRACKY_BLOB_S3_SECRET_ACCESS_KEY": &c.Blob.S3.SecretAccessKey,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("TRACKY_BLOB_S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACKY_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	if v, ok := lookup("TRACKY_MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TRACKY_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v, ok := lookup("TRACKY_QR_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRACKY_QR_SIZE: %w", err)
		}
		c.QRSize = n
	}
	return nil
}

// Validate rejects unknown drivers and missing required values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.QRSize <= 0 {
		return fmt.Errorf("qr_size must be positive")
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Storage.Entities {
	case EntitiesSQL:
	case EntitiesMongo:
		if c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "" {
			return fmt.Errorf("storage.mongo_uri and storage.mongo_database are required for mongo entities")
		}
	default:
		return fmt.Errorf("unknown entity store %q", c.Storage.Entities)
	}

	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem:
		if c.Blob.FSRoot == "" {
			return fmt.Errorf("blob.fs_root is required for the fs driver")
		}
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
		}
	case blob.DriverMemory:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	return nil
}
