package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/erazemk/tracky/internal/blob"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Storage.Driver != "sqlite" || cfg.Blob.Driver != "fs" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracky.yaml")
	yml := `addr: ":9090"
storage:
  driver: postgres
  postgres_dsn: postgres://tracky@localhost/tracky
blob:
  driver: s3
  s3:
    bucket: media
    path_style: true
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %q", cfg.Addr)
	}
	if cfg.Storage.DSN() != "postgres://tracky@localhost/tracky" {
		t.Errorf("unexpected dsn %q", cfg.Storage.DSN())
	}
	if cfg.Storage.Entities != EntitiesSQL {
		t.Errorf("expected untouched defaults to survive, got %q", cfg.Storage.Entities)
	}

	bc := cfg.Blob.Store()
	if bc.Driver != blob.DriverS3 || bc.S3.Bucket != "media" || !bc.S3.PathStyle || bc.S3.Region != "us-east-1" {
		t.Errorf("unexpected blob config %+v", bc)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(env, []byte("TRACKY_QR_SIZE=512\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TRACKY_QR_SIZE") })

	cfg, err := Load("", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QRSize != 512 {
		t.Errorf("expected qr size from .env, got %d", cfg.QRSize)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRACKY_ADDR":               ":7000",
		"TRACKY_ENTITY_STORE":       "mongo",
		"TRACKY_MONGO_URI":          "mongodb://localhost:27017",
		"TRACKY_BLOB_S3_PATH_STYLE": "true",
		"TRACKY_MAX_UPLOAD_BYTES":   "1024",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Addr != ":7000" || cfg.Storage.Entities != EntitiesMongo || !cfg.Blob.S3.PathStyle || cfg.MaxUploadBytes != 1024 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	env["TRACKY_MAX_UPLOAD_BYTES"] = "lots"
	if err := Default().applyEnv(lookup); err == nil {
		t.Error("expected invalid integer to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"mongo without uri", func(c *Config) { c.Storage.Entities = EntitiesMongo }},
		{"unknown entity store", func(c *Config) { c.Storage.Entities = "redis" }},
		{"unknown blob driver", func(c *Config) { c.Blob.Driver = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Blob.Driver = "s3" }},
		{"no upload limit", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"empty addr", func(c *Config) { c.Addr = "" }},
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}
