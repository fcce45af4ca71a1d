// Package workflow runs the entity lifecycle: creation, direct writes, the
// edit-request and approval protocol, deletion and tracker locations.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/tracky/internal/imaging"
	"github.com/erazemk/tracky/internal/media"
	"github.com/erazemk/tracky/internal/metrics"
	"github.com/erazemk/tracky/internal/model"
	"github.com/erazemk/tracky/internal/store"
	"github.com/erazemk/tracky/internal/valuation"
)

// LocationPublisher is notified of every appended tracker location.
type LocationPublisher interface {
	Publish(trackerID string, p model.LocationPoint)
}

// Service executes entity operations on behalf of an authenticated actor.
type Service struct {
	docs  store.DocumentStore
	locs  store.LocationStore
	media *media.Coordinator

	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Publisher LocationPublisher

	// Clock is the "now" valuations are computed against. Defaults to time.Now.
	Clock func() time.Time
}

// NewService returns a Service on the given stores and media coordinator.
func NewService(docs store.DocumentStore, locs store.LocationStore, coord *media.Coordinator) *Service {
	return &Service{
		docs:   docs,
		locs:   locs,
		media:  coord,
		Logger: slog.Default(),
		Clock:  time.Now,
	}
}

// CreateInput is the payload of createEntity.
type CreateInput struct {
	// ID is an optional client-chosen id; empty means store-generated.
	ID      string
	Changes model.Changes
	Image   *imaging.Image
}

// UpdateInput is the payload of a direct write.
type UpdateInput struct {
	Changes model.Changes
	Image   *imaging.Image
}

// LocationInput is one reported tracker position. All fields are required.
type LocationInput struct {
	Timestamp *time.Time `json:"timestamp"`
	Longitude *float64   `json:"longitude"`
	Latitude  *float64   `json:"latitude"`
}

func (s *Service) record(kind model.Kind, op Op, err error) {
	s.Metrics.Transition(string(kind), string(op), err)
}

func requireKind(kind model.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", model.ErrInvalidArgument, kind)
	}
	return nil
}

func requireRevision(rev int64) error {
	if rev <= 0 {
		return fmt.Errorf("%w: revision required", model.ErrInvalidArgument)
	}
	return nil
}

func checkRevision(e *model.Entity, rev int64) error {
	if e.Revision != rev {
		return fmt.Errorf("%w: stale revision %d, current is %d", model.ErrPreconditionFailed, rev, e.Revision)
	}
	return nil
}

// Create stores a new unapproved entity.
func (s *Service) Create(ctx context.Context, actor model.Actor, kind model.Kind, in CreateInput) (e *model.Entity, err error) {
	defer func() { s.record(kind, OpCreate, err) }()

	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if err := Check(actor.Role, "", OpCreate); err != nil {
		return nil, err
	}
	if in.Changes.Name == nil {
		return nil, fmt.Errorf("%w: name required", model.ErrInvalidArgument)
	}
	if err := in.Changes.Validate(kind); err != nil {
		return nil, err
	}

	now := s.Clock()
	e = &model.Entity{
		ID:        in.ID,
		Kind:      kind,
		CreatedBy: actor.ID,
		State:     Next("", actor.Role, OpCreate),
	}
	if kind == model.KindAsset {
		purchase := now.UTC()
		e.DepreciationRate = model.RateDaily
		e.PurchaseDate = &purchase
	}
	in.Changes.Apply(e)

	if e.TrackerID != "" {
		if err := s.requireTracker(ctx, e.TrackerID); err != nil {
			return nil, err
		}
	}
	if err := valuation.Apply(e, now); err != nil {
		return nil, err
	}

	if in.ID != "" {
		if err := s.requireFreeID(ctx, kind, in.ID); err != nil {
			return nil, err
		}
	}

	var staged *media.Staged
	if in.Image != nil {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		staged, err = s.media.Stage(ctx, nil, kind, e.ID, in.Image)
		if err != nil {
			return nil, err
		}
		e.ImageURL = staged.ImageURL
		e.QRCode = staged.QRCode
	}

	e, err = s.docs.Create(ctx, e)
	if err != nil {
		if staged != nil {
			s.media.Discard(ctx, staged, nil)
		}
		return nil, err
	}

	if e.TrackerID != "" {
		s.linkTracker(ctx, e.ID, "", e.TrackerID)
	}

	s.Logger.Info("entity created", "kind", kind, "id", e.ID, "user", actor.ID)
	return e, nil
}

// Get returns one entity with derived fields refreshed.
func (s *Service) Get(ctx context.Context, actor model.Actor, kind model.Kind, id string) (*model.Entity, error) {
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if err := Check(actor.Role, "", OpGet); err != nil {
		return nil, err
	}
	e, err := s.docs.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, e, true); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns the entities of kind matching filter.
func (s *Service) List(ctx context.Context, actor model.Actor, kind model.Kind, filter model.Filter) ([]model.Entity, error) {
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if err := Check(actor.Role, "", OpList); err != nil {
		return nil, err
	}
	all, err := s.docs.List(ctx, kind)
	if err != nil {
		return nil, err
	}

	entities := make([]model.Entity, 0, len(all))
	for i := range all {
		e := &all[i]
		if !filter.Match(e) {
			continue
		}
		if err := s.decorate(ctx, e, false); err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, nil
}

// decorate refreshes derived fields: the as-of-now price of assets and the
// last known position of trackers, plus the full history when withHistory.
func (s *Service) decorate(ctx context.Context, e *model.Entity, withHistory bool) error {
	switch e.Kind {
	case model.KindAsset:
		if err := valuation.Apply(e, s.Clock()); err != nil {
			s.Logger.Warn("stored valuation inputs invalid", "id", e.ID, "error", err)
		}
	case model.KindTracker:
		last, err := s.locs.Latest(ctx, e.ID)
		if err != nil {
			return err
		}
		e.LastLocation = last
		if withHistory && e.Mobile {
			history, err := s.locs.History(ctx, e.ID, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			e.LocationHistory = history
		}
	}
	return nil
}

// Update applies a direct write. The revision must match the stored one.
func (s *Service) Update(ctx context.Context, actor model.Actor, kind model.Kind, id string, rev int64, in UpdateInput) (e *model.Entity, err error) {
	defer func() { s.record(kind, OpUpdate, err) }()

	if err := requireKind(kind); err != nil {
		return nil, err
	}
	current, err := s.docs.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := Check(actor.Role, current.State, OpUpdate); err != nil {
		return nil, err
	}
	if err := requireRevision(rev); err != nil {
		return nil, err
	}
	if err := checkRevision(current, rev); err != nil {
		return nil, err
	}
	if err := in.Changes.Validate(kind); err != nil {
		return nil, err
	}
	if in.Changes.Empty() && in.Image == nil {
		return nil, fmt.Errorf("%w: nothing to update", model.ErrInvalidArgument)
	}

	patch, err := s.changePatch(ctx, current, &in.Changes)
	if err != nil {
		return nil, err
	}
	if next := Next(current.State, actor.Role, OpUpdate); next != current.State {
		patch["state"] = next
		patch["editApprovedBy"] = nil
		patch["editApprovedAt"] = nil
	}

	var staged *media.Staged
	if in.Image != nil {
		staged, err = s.media.Stage(ctx, current, kind, id, in.Image)
		if err != nil {
			return nil, err
		}
		for k, v := range staged.Patch() {
			patch[k] = v
		}
	}

	e, err = s.docs.Update(ctx, kind, id, rev, patch)
	if err != nil {
		if staged != nil {
			s.media.Discard(ctx, staged, current)
		}
		return nil, err
	}
	if staged != nil {
		s.media.Release(ctx, current, staged)
	}

	if kind == model.KindAsset && current.TrackerID != e.TrackerID {
		s.linkTracker(ctx, id, current.TrackerID, e.TrackerID)
	}

	s.Logger.Info("entity updated", "kind", kind, "id", id, "user", actor.ID, "revision", e.Revision)
	if err := s.decorate(ctx, e, false); err != nil {
		return nil, err
	}
	return e, nil
}

// changePatch validates references in c against current and returns the
// store patch applying c, including the recomputed price when c touches
// valuation inputs.
func (s *Service) changePatch(ctx context.Context, current *model.Entity, c *model.Changes) (map[string]any, error) {
	if c.TrackerID != nil && *c.TrackerID != "" && *c.TrackerID != current.TrackerID {
		if err := s.requireTracker(ctx, *c.TrackerID); err != nil {
			return nil, err
		}
	}

	patch, err := c.Fields()
	if err != nil {
		return nil, err
	}

	if current.Kind == model.KindAsset && c.AffectsValuation() {
		next := *current
		c.Apply(&next)
		if err := valuation.Apply(&next, s.Clock()); err != nil {
			return nil, err
		}
		patch["currentPrice"] = next.CurrentPrice
	}
	return patch, nil
}

// Delete removes an entity in any state, then its media and the references
// other entities hold to it.
func (s *Service) Delete(ctx context.Context, actor model.Actor, kind model.Kind, id string) (err error) {
	defer func() { s.record(kind, OpDelete, err) }()

	if err := requireKind(kind); err != nil {
		return err
	}
	current, err := s.docs.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := Check(actor.Role, current.State, OpDelete); err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, kind, id); err != nil {
		return err
	}
	s.media.Remove(ctx, current)

	switch kind {
	case model.KindAsset:
		if current.TrackerID != "" {
			s.linkTracker(ctx, id, current.TrackerID, "")
		}
	case model.KindTracker:
		s.unlinkAssets(ctx, id)
	}

	s.Logger.Info("entity deleted", "kind", kind, "id", id, "user", actor.ID)
	return nil
}

// RequestEdit stages changes for supervisor review, replacing any pending
// request.
func (s *Service) RequestEdit(ctx context.Context, actor model.Actor, kind model.Kind, id string, changes model.Changes) (e *model.Entity, err error) {
	defer func() { s.record(kind, OpRequestEdit, err) }()

	if err := requireKind(kind); err != nil {
		return nil, err
	}
	current, err := s.docs.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := Check(actor.Role, current.State, OpRequestEdit); err != nil {
		return nil, err
	}
	if err := changes.Validate(kind); err != nil {
		return nil, err
	}
	if changes.Empty() {
		return nil, fmt.Errorf("%w: no changes proposed", model.ErrInvalidArgument)
	}

	patch := map[string]any{
		"state":           Next(current.State, actor.Role, OpRequestEdit),
		"editRequestedBy": actor.ID,
		"editRequestedAt": s.docs.Now(),
		"proposedChanges": &changes,
		"editApprovedBy":  nil,
		"editApprovedAt":  nil,
	}

	e, err = s.docs.Update(ctx, kind, id, current.Revision, patch)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("edit requested", "kind", kind, "id", id, "user", actor.ID)
	if err := s.decorate(ctx, e, false); err != nil {
		return nil, err
	}
	return e, nil
}

// ApproveEdit applies the pending proposed changes and opens a one-shot edit
// grant for the operator.
func (s *Service) ApproveEdit(ctx context.Context, actor model.Actor, kind model.Kind, id string, rev int64) (e *model.Entity, err error) {
	defer func() { s.record(kind, OpApproveEdit, err) }()

	if err := requireKind(kind); err != nil {
		return nil, err
	}
	current, err := s.docs.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := Check(actor.Role, current.State, OpApproveEdit); err != nil {
		return nil, err
	}
	if err := requireRevision(rev); err != nil {
		return nil, err
	}
	if err := checkRevision(current, rev); err != nil {
		return nil, err
	}

	changes := current.ProposedChanges
	if changes == nil {
		changes = &model.Changes{}
	}
	if err := changes.Validate(kind); err != nil {
		return nil, err
	}

	patch, err := s.changePatch(ctx, current, changes)
	if err != nil {
		return nil, err
	}
	patch["state"] = Next(current.State, actor.Role, OpApproveEdit)
	patch["editApprovedBy"] = actor.ID
	patch["editApprovedAt"] = s.docs.Now()
	patch["editRequestedBy"] = nil
	patch["editRequestedAt"] = nil
	patch["proposedChanges"] = nil

	e, err = s.docs.Update(ctx, kind, id, rev, patch)
	if err != nil {
		return nil, err
	}

	if kind == model.KindAsset && current.TrackerID != e.TrackerID {
		s.linkTracker(ctx, id, current.TrackerID, e.TrackerID)
	}

	s.Logger.Info("edit approved", "kind", kind, "id", id, "user", actor.ID)
	if err := s.decorate(ctx, e, false); err != nil {
		return nil, err
	}
	return e, nil
}

// Approve moves an entity to approved and drops any pending request or
// grant. Approving an already approved entity changes nothing.
func (s *Service) Approve(ctx context.Context, actor model.Actor, kind model.Kind, id string, rev int64) (e *model.Entity, err error) {
	defer func() { s.record(kind, OpApprove, err) }()

	if err := requireKind(kind); err != nil {
		return nil, err
	}
	current, err := s.docs.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := Check(actor.Role, current.State, OpApprove); err != nil {
		return nil, err
	}
	if current.State == model.StateApproved {
		if err := s.decorate(ctx, current, false); err != nil {
			return nil, err
		}
		return current, nil
	}
	if err := requireRevision(rev); err != nil {
		return nil, err
	}
	if err := checkRevision(current, rev); err != nil {
		return nil, err
	}

	patch := map[string]any{
		"state":           Next(current.State, actor.Role, OpApprove),
		"approvedBy":      actor.ID,
		"approvedAt":      s.docs.Now(),
		"editRequestedBy": nil,
		"editRequestedAt": nil,
		"proposedChanges": nil,
		"editApprovedBy":  nil,
		"editApprovedAt":  nil,
	}

	e, err = s.docs.Update(ctx, kind, id, rev, patch)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("entity approved", "kind", kind, "id", id, "user", actor.ID)
	if err := s.decorate(ctx, e, false); err != nil {
		return nil, err
	}
	return e, nil
}

// AppendLocation records a position for a mobile tracker.
func (s *Service) AppendLocation(ctx context.Context, actor model.Actor, trackerID string, in LocationInput) (p *model.LocationPoint, err error) {
	defer func() {
		s.record(model.KindTracker, OpAppendLocation, err)
		s.Metrics.LocationAppended(err)
	}()

	if err := Check(actor.Role, "", OpAppendLocation); err != nil {
		return nil, err
	}
	if in.Timestamp == nil || in.Longitude == nil || in.Latitude == nil {
		return nil, fmt.Errorf("%w: timestamp, longitude and latitude are required", model.ErrInvalidArgument)
	}
	if !inRange(*in.Longitude, 180) || !inRange(*in.Latitude, 90) {
		return nil, fmt.Errorf("%w: coordinates out of range", model.ErrInvalidArgument)
	}

	tracker, err := s.docs.Get(ctx, model.KindTracker, trackerID)
	if err != nil {
		return nil, err
	}
	if !tracker.Mobile {
		return nil, fmt.Errorf("%w: tracker %q is not mobile", model.ErrPreconditionFailed, trackerID)
	}

	p = &model.LocationPoint{
		Timestamp: in.Timestamp.UTC(),
		Longitude: *in.Longitude,
		Latitude:  *in.Latitude,
	}
	if err := s.locs.Append(ctx, trackerID, *p); err != nil {
		return nil, err
	}

	if s.Publisher != nil {
		s.Publisher.Publish(trackerID, *p)
	}
	return p, nil
}

func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// LocationHistory returns the tracker's points within [from, to]; zero bounds
// are open.
func (s *Service) LocationHistory(ctx context.Context, actor model.Actor, trackerID string, from, to time.Time) ([]model.LocationPoint, error) {
	if err := Check(actor.Role, "", OpLocationHistory); err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, fmt.Errorf("%w: window ends before it starts", model.ErrInvalidArgument)
	}
	if _, err := s.docs.Get(ctx, model.KindTracker, trackerID); err != nil {
		return nil, err
	}
	return s.locs.History(ctx, trackerID, from, to)
}

// requireFreeID rejects a client-chosen id already in use. The store's
// uniqueness check on create remains the final guard.
func (s *Service) requireFreeID(ctx context.Context, kind model.Kind, id string) error {
	_, err := s.docs.Get(ctx, kind, id)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s id %q already exists", model.ErrPreconditionFailed, kind, id)
	case model.KindOf(err) == model.KindNotFound:
		return nil
	default:
		return err
	}
}

func (s *Service) requireTracker(ctx context.Context, id string) error {
	if _, err := s.docs.Get(ctx, model.KindTracker, id); err != nil {
		return fmt.Errorf("tracker %q: %w", id, err)
	}
	return nil
}

// linkTracker moves the asset back-reference from oldTracker to newTracker.
// These are independent writes; failures are logged and left for
// reconciliation.
func (s *Service) linkTracker(ctx context.Context, assetID, oldTracker, newTracker string) {
	if oldTracker != "" && oldTracker != newTracker {
		t, err := s.docs.Get(ctx, model.KindTracker, oldTracker)
		if err == nil && t.AssetID == assetID {
			_, err = s.docs.Update(ctx, model.KindTracker, oldTracker, 0, map[string]any{"assetId": nil})
		}
		if err != nil && model.KindOf(err) != model.KindNotFound {
			s.Logger.Warn("clearing tracker back-reference failed", "tracker", oldTracker, "asset", assetID, "error", err)
		}
	}
	if newTracker != "" && newTracker != oldTracker {
		_, err := s.docs.Update(ctx, model.KindTracker, newTracker, 0, map[string]any{"assetId": assetID})
		if err != nil {
			s.Logger.Warn("setting tracker back-reference failed", "tracker", newTracker, "asset", assetID, "error", err)
		}
	}
}

// unlinkAssets clears trackerId on every asset carried by a deleted tracker.
func (s *Service) unlinkAssets(ctx context.Context, trackerID string) {
	assets, err := s.docs.List(ctx, model.KindAsset)
	if err != nil {
		s.Logger.Warn("listing assets for unlink failed", "tracker", trackerID, "error", err)
		return
	}
	for _, a := range assets {
		if a.TrackerID != trackerID {
			continue
		}
		if _, err := s.docs.Update(ctx, model.KindAsset, a.ID, 0, map[string]any{"trackerId": nil}); err != nil {
			s.Logger.Warn("clearing asset tracker reference failed", "asset", a.ID, "tracker", trackerID, "error", err)
		}
	}
}
