// Package media ties entity images and their QR codes to document writes.
//
// Blobs are staged under keys unique to each write before the document
// write, discarded if that write fails, and the previous blobs are released only
// after the write commits. A document therefore never points at a deleted
// blob, and a referenced blob is never deleted.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/erazemk/tracky/internal/blob"
	"github.com/erazemk/tracky/internal/imaging"
	"github.com/erazemk/tracky/internal/metrics"
	"github.com/erazemk/tracky/internal/model"
)

// DefaultQRSize is the edge length in pixels of generated QR codes.
const DefaultQRSize = 256

// Coordinator stages, discards and releases entity media.
type Coordinator struct {
	blobs   blob.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	QRSize int
}

// New returns a coordinator on blobs. logger and m may be nil.
func New(blobs blob.Store, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{blobs: blobs, logger: logger, metrics: m, QRSize: DefaultQRSize}
}

// Staged is media uploaded for a document write that has not committed yet.
type Staged struct {
	ImageURL string
	QRCode   string
}

// Patch returns the document fields pointing at the staged blobs.
func (s *Staged) Patch() map[string]any {
	return map[string]any{"imageURL": s.ImageURL, "qrCode": s.QRCode}
}

func (s *Staged) urls() []string {
	if s == nil {
		return nil
	}
	return []string{s.ImageURL, s.QRCode}
}

func entityURLs(e *model.Entity) []string {
	if e == nil {
		return nil
	}
	return []string{e.ImageURL, e.QRCode}
}

// Key returns the blob key for an image of entity (kind, id) staged by one
// write: <kind>s/<id>/<digest>-<nonce>.<ext>. The nonce keeps a failed write
// from ever naming a blob another write committed.
func Key(kind model.Kind, id string, data []byte, ext, nonce string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%ss/%s/%s-%s.%s", kind, id, hex.EncodeToString(sum[:])[:12], nonce, ext)
}

// Stage uploads img and a QR code encoding the image URL. On failure nothing
// staged is left behind, except blobs still referenced by current.
func (c *Coordinator) Stage(ctx context.Context, current *model.Entity, kind model.Kind, id string, img *imaging.Image) (*Staged, error) {
	key := Key(kind, id, img.Data, img.Ext, uuid.NewString()[:8])

	imageURL, err := c.blobs.Put(ctx, key, img.Data, img.MIME)
	if err != nil {
		return nil, fmt.Errorf("%w: storing image: %w", model.ErrDependency, err)
	}
	staged := &Staged{ImageURL: imageURL}

	png, err := qrcode.Encode(imageURL, qrcode.Medium, c.QRSize)
	if err != nil {
		c.Discard(ctx, staged, current)
		return nil, fmt.Errorf("generating qr code: %w", err)
	}

	qrURL, err := c.blobs.Put(ctx, key+"-qr.png", png, "image/png")
	if err != nil {
		c.Discard(ctx, staged, current)
		return nil, fmt.Errorf("%w: storing qr code: %w", model.ErrDependency, err)
	}
	staged.QRCode = qrURL

	return staged, nil
}

// Discard deletes staged blobs after the document write failed. Blobs that
// current still references are kept.
func (c *Coordinator) Discard(ctx context.Context, staged *Staged, current *model.Entity) {
	c.remove(ctx, staged.urls(), entityURLs(current))
}

// Release deletes the previous media of an entity after a write that
// replaced it committed. Blobs equal to the staged replacement are kept.
func (c *Coordinator) Release(ctx context.Context, previous *model.Entity, staged *Staged) {
	c.remove(ctx, entityURLs(previous), staged.urls())
}

// Remove deletes all media of a deleted entity.
func (c *Coordinator) Remove(ctx context.Context, e *model.Entity) {
	c.remove(ctx, entityURLs(e), nil)
}

// remove is best-effort: failures are logged and counted, never returned.
func (c *Coordinator) remove(ctx context.Context, urls, keep []string) {
	for _, u := range urls {
		if u == "" || slices.Contains(keep, u) {
			continue
		}
		if err := c.blobs.Delete(ctx, u); err != nil {
			c.logger.Warn("blob cleanup failed", "url", u, "error", err)
			c.metrics.CleanupFailed()
		}
	}
}
