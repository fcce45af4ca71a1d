// Package mongostore implements the document store and location ledger on
// MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/erazemk/tracky/internal/model"
	"github.com/erazemk/tracky/internal/store"
)

const (
	documentsCollection = "documents"
	locationsCollection = "locations"
)

// Store keeps entity documents and tracker locations in one database.
type Store struct {
	store.Stamper

	client    *mongo.Client
	documents *mongo.Collection
	locations *mongo.Collection
}

var (
	_ store.DocumentStore = (*Store)(nil)
	_ store.LocationStore = (*Store)(nil)
)

type document struct {
	Key      string `bson:"_id"`
	Kind     string `bson:"kind"`
	ID       string `bson:"id"`
	Doc      string `bson:"doc"`
	Revision int64  `bson:"revision"`
}

type location struct {
	TrackerID  string  `bson:"trackerId"`
	RecordedAt int64   `bson:"recordedAt"`
	Longitude  float64 `bson:"longitude"`
	Latitude   float64 `bson:"latitude"`
}

// Open connects to uri, verifies the connection and ensures indexes on
// database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri required")
	}
	if database == "" {
		database = "tracky"
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(20 * time.Second).
		SetServerSelectionTimeout(15 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:    client,
		documents: db.Collection(documentsCollection),
		locations: db.Collection(locationsCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kind", Value: 1}, {Key: "id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("creating documents index: %w", err)
	}
	_, err = s.locations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "trackerId", Value: 1}, {Key: "recordedAt", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating locations index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func key(kind model.Kind, id string) string {
	return string(kind) + "/" + id
}

// Get returns the document (kind, id) or model.ErrNotFound.
func (s *Store) Get(ctx context.Context, kind model.Kind, id string) (*model.Entity, error) {
	var d document
	err := s.documents.FindOne(ctx, bson.M{"_id": key(kind, id)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: getting %s: %w", model.ErrDependency, kind, err)
	}
	return store.DecodeEntity(kind, id, d.Revision, d.Doc)
}

// Create inserts e. An empty e.ID is replaced with a generated id.
func (s *Store) Create(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	body, err := store.EncodeEntity(e)
	if err != nil {
		return nil, err
	}

	_, err = s.documents.InsertOne(ctx, document{
		Key:      key(e.Kind, e.ID),
		Kind:     string(e.Kind),
		ID:       e.ID,
		Doc:      body,
		Revision: 1,
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: %s id %q already exists", model.ErrPreconditionFailed, e.Kind, e.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", model.ErrDependency, e.Kind, err)
	}

	e.Revision = 1
	return e, nil
}

// Update merges patch into the document. See store.Documents.Update.
func (s *Store) Update(ctx context.Context, kind model.Kind, id string, rev int64, patch map[string]any) (*model.Entity, error) {
	var d document
	err := s.documents.FindOne(ctx, bson.M{"_id": key(kind, id)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", model.ErrDependency, kind, err)
	}
	if rev != 0 && rev != d.Revision {
		return nil, fmt.Errorf("%w: stale revision %d, current is %d", model.ErrPreconditionFailed, rev, d.Revision)
	}

	merged, err := store.MergeDocument(d.Doc, patch, s.Now())
	if err != nil {
		return nil, fmt.Errorf("merging %s %q: %w", kind, id, err)
	}

	res, err := s.documents.UpdateOne(ctx,
		bson.M{"_id": d.Key, "revision": d.Revision},
		bson.M{"$set": bson.M{"doc": merged}, "$inc": bson.M{"revision": 1}},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: updating %s: %w", model.ErrDependency, kind, err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: %s %q changed concurrently", model.ErrPreconditionFailed, kind, id)
	}

	return store.DecodeEntity(kind, id, d.Revision+1, merged)
}

// Delete removes the document and, for trackers, its locations.
func (s *Store) Delete(ctx context.Context, kind model.Kind, id string) error {
	res, err := s.documents.DeleteOne(ctx, bson.M{"_id": key(kind, id)})
	if err != nil {
		return fmt.Errorf("%w: deleting %s: %w", model.ErrDependency, kind, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s %q", model.ErrNotFound, kind, id)
	}

	if kind == model.KindTracker {
		if _, err := s.locations.DeleteMany(ctx, bson.M{"trackerId": id}); err != nil {
			return fmt.Errorf("%w: deleting locations: %w", model.ErrDependency, err)
		}
	}
	return nil
}

// List returns all documents of kind, ordered by id.
func (s *Store) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	cursor, err := s.documents.Find(ctx,
		bson.M{"kind": string(kind)},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", model.ErrDependency, kind, err)
	}

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", model.ErrDependency, kind, err)
	}

	entities := make([]model.Entity, 0, len(docs))
	for _, d := range docs {
		e, err := store.DecodeEntity(kind, d.ID, d.Revision, d.Doc)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, nil
}

// Append upserts p for trackerID, replacing a point at the same instant.
func (s *Store) Append(ctx context.Context, trackerID string, p model.LocationPoint) error {
	ns := p.Timestamp.UnixNano()
	_, err := s.locations.UpdateOne(ctx,
		bson.M{"trackerId": trackerID, "recordedAt": ns},
		bson.M{"$set": bson.M{"longitude": p.Longitude, "latitude": p.Latitude}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: appending location: %w", model.ErrDependency, err)
	}
	return nil
}

// History returns points for trackerID within [from, to], oldest first.
func (s *Store) History(ctx context.Context, trackerID string, from, to time.Time) ([]model.LocationPoint, error) {
	filter := bson.M{"trackerId": trackerID}
	window := bson.M{}
	if !from.IsZero() {
		window["$gte"] = from.UnixNano()
	}
	if !to.IsZero() {
		window["$lte"] = to.UnixNano()
	}
	if len(window) > 0 {
		filter["recordedAt"] = window
	}

	cursor, err := s.locations.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "recordedAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: reading locations: %w", model.ErrDependency, err)
	}

	var rows []location
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: reading locations: %w", model.ErrDependency, err)
	}

	points := make([]model.LocationPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, r.point())
	}
	return points, nil
}

// Latest returns the most recent point for trackerID, or nil.
func (s *Store) Latest(ctx context.Context, trackerID string) (*model.LocationPoint, error) {
	var r location
	err := s.locations.FindOne(ctx,
		bson.M{"trackerId": trackerID},
		options.FindOne().SetSort(bson.D{{Key: "recordedAt", Value: -1}}),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading latest location: %w", model.ErrDependency, err)
	}
	p := r.point()
	return &p, nil
}

func (r location) point() model.LocationPoint {
	return model.LocationPoint{
		Timestamp: time.Unix(0, r.RecordedAt).UTC(),
		Longitude: r.Longitude,
		Latitude:  r.Latitude,
	}
}

// Ping reports whether the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
