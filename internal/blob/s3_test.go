package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3 is a tiny fake of the PutObject/DeleteObject subset, keyed by path.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string]string // key -> content type
	fail    bool
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}

	switch req.Method {
	case http.MethodPut:
		m.objects[key] = req.Header.Get("Content-Type")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{"ETag": {"\"etag\""}}}, nil
	case http.MethodDelete:
		delete(m.objects, key)
		return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func newMockS3(t *testing.T) (*S3, *mockS3) {
	t.Helper()
	rt := &mockS3{objects: make(map[string]string)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
		config.WithRetryMaxAttempts(1),
	)
	if err != nil {
		t.Fatalf("cfg: %v", err)
	}
	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
	})
	return &S3{client: client, bucket: "media", baseURL: "https://mock.s3.local/media"}, rt
}

func TestS3PutDelete(t *testing.T) {
	s, rt := newMockS3(t)
	ctx := context.Background()

	url, err := s.Put(ctx, "assets/a1/img.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://mock.s3.local/media/assets/a1/img.png" {
		t.Errorf("unexpected url %q", url)
	}
	if ct, ok := rt.objects["assets/a1/img.png"]; !ok || ct != "image/png" {
		t.Fatalf("expected object stored with content type, got %q %v", ct, ok)
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(rt.objects) != 0 {
		t.Errorf("expected object removed, got %v", rt.objects)
	}
}

func TestS3PutFailure(t *testing.T) {
	s, rt := newMockS3(t)
	rt.fail = true

	if _, err := s.Put(context.Background(), "k", []byte("x"), ""); err == nil {
		t.Error("expected upload error")
	}
}

func TestS3BaseURL(t *testing.T) {
	tests := []struct {
		cfg  S3Config
		want string
	}{
		{S3Config{Bucket: "b", PublicURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
		{S3Config{Bucket: "b", Endpoint: "http://minio:9000", PathStyle: true}, "http://minio:9000/b"},
		{S3Config{Bucket: "b", Endpoint: "https://s3.example.com"}, "https://b.s3.example.com"},
		{S3Config{Bucket: "b"}, "https://b.s3.eu-central-1.amazonaws.com"},
	}
	for _, tt := range tests {
		if got := s3BaseURL(tt.cfg, "eu-central-1"); got != tt.want {
			t.Errorf("s3BaseURL(%+v): expected %q, got %q", tt.cfg, tt.want, got)
		}
	}
}
