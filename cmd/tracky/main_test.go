package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erazemk/tracky/internal/config"
	"github.com/erazemk/tracky/internal/model"
	"github.com/erazemk/tracky/internal/store"
)

func TestLevelRouter(t *testing.T) {
	var out, errOut bytes.Buffer
	h := &levelRouter{
		level:  slog.LevelInfo,
		stdout: slog.NewTextHandler(&out, nil),
		stderr: slog.NewTextHandler(&errOut, nil),
	}
	logger := slog.New(h).With("component", "test")

	logger.Debug("hidden")
	logger.Warn("to stdout")
	logger.Error("to stderr")

	if strings.Contains(out.String(), "hidden") {
		t.Error("expected debug to be filtered")
	}
	if !strings.Contains(out.String(), "to stdout") || strings.Contains(out.String(), "to stderr") {
		t.Errorf("unexpected stdout %q", out.String())
	}
	if !strings.Contains(errOut.String(), "to stderr") || !strings.Contains(errOut.String(), "component=test") {
		t.Errorf("unexpected stderr %q", errOut.String())
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	b, _ := generatePassword(16)
	if len(a) != 16 || a == b {
		t.Errorf("expected distinct 16-char passwords, got %q %q", a, b)
	}
}

func TestInitDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "tracky.sqlite3")
	ctx := context.Background()

	password, err := initDatabase(ctx, cfg, "boss")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	if len(password) != 16 {
		t.Errorf("expected generated password, got %q", password)
	}

	if _, err := initDatabase(ctx, cfg, "boss"); err == nil {
		t.Error("expected second init to be refused")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		t.Fatalf("openDatabase: %v", err)
	}
	defer database.Close()

	u, err := store.GetUserByUsername(ctx, database, "boss")
	if err != nil || u == nil {
		t.Fatalf("expected supervisor account, got %v %v", u, err)
	}
	if u.Role != model.RoleSupervisor {
		t.Errorf("expected supervisor role, got %s", u.Role)
	}

	if _, err := addUser(ctx, database, "short", "123", model.RoleViewer); err == nil {
		t.Error("expected short password to be rejected")
	}
	if _, err := addUser(ctx, database, "ghost", "longenough", model.Role("admin")); err == nil {
		t.Error("expected unknown role to be rejected")
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "init", "user"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("expected %s subcommand, got %v %v", name, cmd, err)
		}
	}
}

func TestEntityStoresSQLBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "tracky.sqlite3")
	database, err := openDatabase(cfg)
	if err != nil {
		t.Fatalf("openDatabase: %v", err)
	}
	defer database.Close()

	entities, err := entityStores(context.Background(), cfg, database)
	if err != nil {
		t.Fatalf("entityStores: %v", err)
	}
	defer entities.close()
	if entities.docs == nil || entities.locs == nil {
		t.Fatal("expected document and location stores")
	}
	if err := entities.ping(context.Background()); err != nil {
		t.Errorf("expected reachable backend, got %v", err)
	}
}
