package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/tracky/internal/db"
	"github.com/erazemk/tracky/internal/model"
)

// Locations is the append-only location ledger keyed by (tracker, timestamp).
type Locations struct {
	db *db.DB
}

// NewLocations returns a location ledger on database.
func NewLocations(database *db.DB) *Locations {
	return &Locations{db: database}
}

// Append records p for trackerID. Points are keyed by their timestamp in
// Unix nanoseconds; a second point at the same instant replaces the first.
func (l *Locations) Append(ctx context.Context, trackerID string, p model.LocationPoint) error {
	_, err := l.db.ExecContext(ctx,
		l.db.Rebind(`INSERT INTO locations (tracker_id, recorded_at, longitude, latitude)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (tracker_id, recorded_at)
		 DO UPDATE SET longitude = excluded.longitude, latitude = excluded.latitude`),
		trackerID, p.Timestamp.UnixNano(), p.Longitude, p.Latitude,
	)
	if err != nil {
		return fmt.Errorf("%w: appending location: %w", model.ErrDependency, err)
	}
	return nil
}

// History returns the points for trackerID with from <= timestamp <= to,
// oldest first. A zero bound is open.
func (l *Locations) History(ctx context.Context, trackerID string, from, to time.Time) ([]model.LocationPoint, error) {
	query := `SELECT recorded_at, longitude, latitude FROM locations WHERE tracker_id = ?`
	args := []any{trackerID}
	if !from.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, from.UnixNano())
	}
	if !to.IsZero() {
		query += ` AND recorded_at <= ?`
		args = append(args, to.UnixNano())
	}
	query += ` ORDER BY recorded_at`

	rows, err := l.db.QueryContext(ctx, l.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: reading locations: %w", model.ErrDependency, err)
	}
	defer rows.Close()

	points := []model.LocationPoint{}
	for rows.Next() {
		var ns int64
		var p model.LocationPoint
		if err := rows.Scan(&ns, &p.Longitude, &p.Latitude); err != nil {
			return nil, fmt.Errorf("%w: scanning location: %w", model.ErrDependency, err)
		}
		p.Timestamp = time.Unix(0, ns).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading locations: %w", model.ErrDependency, err)
	}
	return points, nil
}

// Latest returns the most recent point for trackerID, or nil if none exist.
func (l *Locations) Latest(ctx context.Context, trackerID string) (*model.LocationPoint, error) {
	var ns int64
	p := &model.LocationPoint{}
	err := l.db.QueryRowContext(ctx,
		l.db.Rebind(`SELECT recorded_at, longitude, latitude FROM locations
		 WHERE tracker_id = ? ORDER BY recorded_at DESC LIMIT 1`),
		trackerID,
	).Scan(&ns, &p.Longitude, &p.Latitude)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading latest location: %w", model.ErrDependency, err)
	}
	p.Timestamp = time.Unix(0, ns).UTC()
	return p, nil
}
