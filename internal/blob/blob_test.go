package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		base, url, want string
		wantErr         bool
	}{
		{"/media", "/media/assets/a1/x.png", "assets/a1/x.png", false},
		{"/media/", "/media/assets/x.png", "assets/x.png", false},
		{"https://cdn.example.com", "https://cdn.example.com/k", "k", false},
		{"/media", "/other/k", "", true},
		{"/media", "/media/../etc/passwd", "", true},
		{"/media", "/media/", "", true},
	}

	for _, tt := range tests {
		got, err := keyFromURL(tt.base, tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("keyFromURL(%q, %q): expected error", tt.base, tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("keyFromURL(%q, %q): %v", tt.base, tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("keyFromURL(%q, %q): expected %q, got %q", tt.base, tt.url, tt.want, got)
		}
	}
}

func TestMemoryPutDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	url, err := m.Put(ctx, "assets/a1/img.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ct, ok := m.Get(url)
	if !ok || string(data) != "png" || ct != "image/png" {
		t.Fatalf("unexpected blob: %q %q %v", data, ct, ok)
	}

	if err := m.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty store, got %d", m.Len())
	}
	if err := m.Delete(ctx, url); err != nil {
		t.Errorf("expected deleting a missing blob to succeed, got %v", err)
	}
	if err := m.Delete(ctx, "https://elsewhere/x"); !errors.Is(err, ErrForeignURL) {
		t.Errorf("expected ErrForeignURL, got %v", err)
	}
}

func TestMemoryFailureInjection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailPut = boom
	if _, err := m.Put(ctx, "k", []byte("x"), ""); !errors.Is(err, boom) {
		t.Errorf("expected injected put error, got %v", err)
	}
	m.FailPut = nil

	url, _ := m.Put(ctx, "k", []byte("x"), "")
	m.FailDelete = boom
	if err := m.Delete(ctx, url); !errors.Is(err, boom) {
		t.Errorf("expected injected delete error, got %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("expected blob to survive failed delete")
	}
}

func TestFilesystemPutDelete(t *testing.T) {
	root := t.TempDir()
	s, err := NewFilesystem(root, "/media")
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	ctx := context.Background()

	url, err := s.Put(ctx, "trackers/t1/abc.jpg", []byte("jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "/media/trackers/t1/abc.jpg" {
		t.Errorf("unexpected url %q", url)
	}

	path := filepath.Join(root, "trackers", "t1", "abc.jpg")
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("reading blob: %q %v", data, err)
	}

	if _, err := s.Put(ctx, "trackers/t1/abc.jpg", []byte("jpeg2"), "image/jpeg"); err != nil {
		t.Fatalf("overwriting Put: %v", err)
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected file removed, got %v", err)
	}
	if err := s.Delete(ctx, url); err != nil {
		t.Errorf("expected missing delete to succeed, got %v", err)
	}

	if _, err := s.Put(ctx, "../escape", []byte("x"), ""); err == nil {
		t.Error("expected traversal key to be rejected")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("Open memory: %v %v", s, err)
	}

	s, err = Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("Open default: %v %v", s, err)
	}

	if _, err := Open(ctx, Config{Driver: "ftp"}); err == nil {
		t.Error("expected unknown driver error")
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Error("expected missing bucket error")
	}
}
