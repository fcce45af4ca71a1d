package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/tracky/internal/db"
	"github.com/erazemk/tracky/internal/model"
)

// Keys owned by the documents table columns, or derived on read, rather
// than the JSON body.
var columnKeys = []string{"id", "kind", "revision", "locationHistory", "lastLocation"}

// Documents is the keyed-document store for assets and trackers. It has no
// business rules: it reads, merges, stamps and writes documents.
type Documents struct {
	Stamper

	db *db.DB
}

// NewDocuments returns a document store on database.
func NewDocuments(database *db.DB) *Documents {
	return &Documents{db: database}
}

// Get returns the document (kind, id) or model.ErrNotFound.
func (d *Documents) Get(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	var raw string
	var rev int64
	err := d.db.QueryRowContext(ctx,
		d.db.Rebind(`SELECT doc, revision FROM documents WHERE kind = ? AND id = ?`),
		string(kind), id,
	).Scan(&raw, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: getting %s: %w", model.ErrDependency, kind, err)
	}
	return DecodeEntity(kind, id, rev, raw)
}

// Create inserts e as a new document. An empty e.ID is replaced with a
// generated id; a supplied id must not exist yet.
func (d *Documents) Create(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := d.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	doc, err := EncodeEntity(e)
	if err != nil {
		return nil, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", model.ErrDependency, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		d.db.Rebind(`SELECT COUNT(*) FROM documents WHERE kind = ? AND id = ?`),
		string(e.Kind), e.ID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %s id: %w", model.ErrDependency, e.Kind, err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: %s id %q already exists", model.ErrPreconditionFailed, e.Kind, e.ID)
	}

	_, err = tx.ExecContext(ctx,
		d.db.Rebind(`INSERT INTO documents (kind, id, doc, revision) VALUES (?, ?, ?, 1)`),
		string(e.Kind), e.ID, doc,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", model.ErrDependency, e.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing %s: %w", model.ErrDependency, e.Kind, err)
	}

	e.Revision = 1
	return e, nil
}

// Update merges patch into the stored document field by field. A nil value
// removes the field. When rev is non-zero the write only happens if the stored
// revision still equals rev; otherwise model.ErrPreconditionFailed is returned.
// Every successful update increments the revision and stamps updatedAt.
func (d *Documents) Update(ctx context.Context, kind model.Kind, id string, rev int64, patch map[string]any) (*model.Entity, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", model.ErrDependency, err)
	}
	defer tx.Rollback()

	var raw string
	var current int64
	err = tx.QueryRowContext(ctx,
		d.db.Rebind(`SELECT doc, revision FROM documents WHERE kind = ? AND id = ?`),
		string(kind), id,
	).Scan(&raw, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", model.ErrDependency, kind, err)
	}
	if rev != 0 && rev != current {
		return nil, fmt.Errorf("%w: stale revision %d, current is %d", model.ErrPreconditionFailed, rev, current)
	}

	merged, err := MergeDocument(raw, patch, d.Now())
	if err != nil {
		return nil, fmt.Errorf("merging %s %q: %w", kind, id, err)
	}

	res, err := tx.ExecContext(ctx,
		d.db.Rebind(`UPDATE documents SET doc = ?, revision = revision + 1
		 WHERE kind = ? AND id = ? AND revision = ?`),
		merged, string(kind), id, current,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: updating %s: %w", model.ErrDependency, kind, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("%w: updating %s: %w", model.ErrDependency, kind, err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: %s %q changed concurrently", model.ErrPreconditionFailed, kind, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing %s: %w", model.ErrDependency, kind, err)
	}

	return DecodeEntity(kind, id, current+1, merged)
}

// Delete removes the document (kind, id). Deleting a tracker also removes its
// location rows.
func (d *Documents) Delete(ctx context.Context, kind model.Kind, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", model.ErrDependency, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		d.db.Rebind(`DELETE FROM documents WHERE kind = ? AND id = ?`),
		string(kind), id,
	)
	if err != nil {
		return fmt.Errorf("%w: deleting %s: %w", model.ErrDependency, kind, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("%w: deleting %s: %w", model.ErrDependency, kind, err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, id)
	}

	if kind == model.KindTracker {
		_, err = tx.ExecContext(ctx,
			d.db.Rebind(`DELETE FROM locations WHERE tracker_id = ?`), id,
		)
		if err != nil {
			return fmt.Errorf("%w: deleting locations: %w", model.ErrDependency, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing delete: %w", model.ErrDependency, err)
	}
	return nil
}

// List returns all documents of kind, ordered by id.
func (d *Documents) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	rows, err := d.db.QueryContext(ctx,
		d.db.Rebind(`SELECT id, doc, revision FROM documents WHERE kind = ? ORDER BY id`),
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", model.ErrDependency, kind, err)
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var id, raw string
		var rev int64
		if err := rows.Scan(&id, &raw, &rev); err != nil {
			return nil, fmt.Errorf("%w: scanning %s: %w", model.ErrDependency, kind, err)
		}
		e, err := DecodeEntity(kind, id, rev, raw)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", model.ErrDependency, kind, err)
	}
	return entities, nil
}

// MergeDocument applies patch to the stored JSON body raw field by field and
// stamps updatedAt. A nil patch value removes the field.
func MergeDocument(raw string, patch map[string]any, updatedAt time.Time) (string, error) {
	doc := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("decoding document: %w", err)
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	for _, k := range columnKeys {
		delete(doc, k)
	}
	doc["updatedAt"] = updatedAt

	merged, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	return string(merged), nil
}

// EncodeEntity returns the stored JSON body of e.
func EncodeEntity(e *model.Entity) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", e.Kind, err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("encoding %s: %w", e.Kind, err)
	}
	for _, k := range columnKeys {
		delete(doc, k)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", e.Kind, err)
	}
	return string(out), nil
}

// DecodeEntity rebuilds an entity from its stored JSON body.
func DecodeEntity(kind model.Kind, id string, rev int64, raw string) (*model.Entity, error) {
	e := &model.Entity{}
	if err := json.Unmarshal([]byte(raw), e); err != nil {
		return nil, fmt.Errorf("decoding %s %q: %w", kind, id, err)
	}
	e.ID = id
	e.Kind = kind
	e.Revision = rev
	if e.State == "" {
		e.State = model.StateUnapproved
	}
	return e, nil
}
