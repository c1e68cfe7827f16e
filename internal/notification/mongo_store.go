// Beacon - Real-time Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/beacon

package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tomtom215/beacon/internal/keylock"
)

const mongoCollection = "notifications"

// MongoOptions configures OpenMongo.
type MongoOptions struct {
	URI      string
	Database string
	Timeout  time.Duration // per operation
}

// MongoStore is a Store on a MongoDB collection.
type MongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	locks   *keylock.Locker

	now   func() time.Time
	newID func() string
}

// mongoDoc is the stored shape. Attributes are kept as JSON text so they
// round-trip byte-for-byte; created_ns keeps full timestamp precision for
// ordering.
type mongoDoc struct {
	ID          string     `bson:"_id"`
	RecipientID string     `bson:"recipient_id"`
	Kind        string     `bson:"kind"`
	Title       string     `bson:"title"`
	Body        string     `bson:"body"`
	Attributes  string     `bson:"attributes"`
	ReadState   ReadState  `bson:"read_state"`
	CreatedNs   int64      `bson:"created_ns"`
	CreatedAt   time.Time  `bson:"created_at"`
	ReadAt      *time.Time `bson:"read_at,omitempty"`
}

func (d *mongoDoc) notification() *Notification {
	n := &Notification{
		ID:          d.ID,
		RecipientID: d.RecipientID,
		Kind:        d.Kind,
		Title:       d.Title,
		Body:        d.Body,
		Attributes:  json.RawMessage(d.Attributes),
		ReadState:   d.ReadState,
		CreatedAt:   time.Unix(0, d.CreatedNs).UTC(),
	}
	if d.ReadAt != nil {
		at := d.ReadAt.UTC()
		n.ReadAt = &at
	}
	return n
}

// OpenMongo connects, verifies the server is reachable and ensures indexes.
func OpenMongo(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %w", ErrStoreUnavailable, err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping mongo: %w", ErrStoreUnavailable, err)
	}

	s := &MongoStore{
		client:  client,
		coll:    client.Database(opts.Database).Collection(mongoCollection),
		timeout: opts.Timeout,
		locks:   keylock.New(),
		now:     time.Now,
		newID:   newID,
	}
	if err := s.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_ns", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "read_state", Value: 1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("%w: create indexes: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MongoStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *MongoStore) Create(ctx context.Context, recipientID string, c Content) (*Notification, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if recipientID != "" {
		if err := validateRecipient(recipientID); err != nil {
			return nil, err
		}
	}
	attrs, err := normalizeAttributes(c.Attributes)
	if err != nil {
		return nil, err
	}

	created := s.now().UTC()
	doc := mongoDoc{
		ID:          s.newID(),
		RecipientID: recipientID,
		Kind:        c.Kind,
		Title:       c.Title,
		Body:        c.Body,
		Attributes:  string(attrs),
		ReadState:   Unread,
		CreatedNs:   created.UnixNano(),
		CreatedAt:   created,
	}

	octx, cancel := s.opContext(ctx)
	defer cancel()
	if _, err := s.coll.InsertOne(octx, doc); err != nil {
		return nil, classifyRequest(ctx, "create", err)
	}
	return doc.notification(), nil
}

func (s *MongoStore) ListForRecipient(ctx context.Context, recipientID string, p Page) (*PageResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return nil, err
	}
	return s.list(ctx, "list", bson.D{{Key: "recipient_id", Value: recipientID}}, p)
}

func (s *MongoStore) ListBroadcasts(ctx context.Context, p Page) (*PageResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return s.list(ctx, "list_broadcasts", bson.D{{Key: "recipient_id", Value: ""}}, p)
}

func (s *MongoStore) list(ctx context.Context, op string, filter bson.D, p Page) (*PageResult, error) {
	p = p.normalized()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_ns", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(p.Limit + 1))

	if p.Cursor != "" {
		key, err := decodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
		ns, id, _ := parseSortKey(key)
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "created_ns", Value: bson.D{{Key: "$lt", Value: ns}}}},
			bson.D{{Key: "created_ns", Value: ns}, {Key: "_id", Value: bson.D{{Key: "$gt", Value: id}}}},
		}})
	} else if p.Offset > 0 {
		findOpts.SetSkip(int64(p.Offset))
	}

	octx, cancel := s.opContext(ctx)
	defer cancel()

	cur, err := s.coll.Find(octx, filter, findOpts)
	if err != nil {
		return nil, classifyRequest(ctx, op, err)
	}
	var docs []mongoDoc
	if err := cur.All(octx, &docs); err != nil {
		return nil, classifyRequest(ctx, op, err)
	}

	result := &PageResult{Items: make([]*Notification, 0, min(len(docs), p.Limit))}
	for i := range docs {
		if i == p.Limit {
			last := result.Items[len(result.Items)-1]
			result.NextCursor = encodeCursor(sortKey(last.CreatedAt, last.ID))
			break
		}
		result.Items = append(result.Items, docs[i].notification())
	}
	return result, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, recipientID, id string) (*Notification, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(recipientID)
	defer unlock()

	octx, cancel := s.opContext(ctx)
	defer cancel()

	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "recipient_id", Value: recipientID},
		{Key: "read_state", Value: Unread},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "read_state", Value: Read},
		{Key: "read_at", Value: s.now().UTC()},
	}}}

	var doc mongoDoc
	err := s.coll.FindOneAndUpdate(octx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return doc.notification(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, classifyRequest(ctx, "mark_read", err)
	}

	// Either already read, not owned, or missing.
	err = s.coll.FindOne(octx, bson.D{{Key: "_id", Value: id}, {Key: "recipient_id", Value: recipientID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyRequest(ctx, "mark_read", err)
	}
	return doc.notification(), nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(recipientID)
	defer unlock()

	octx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.coll.UpdateMany(octx,
		bson.D{{Key: "recipient_id", Value: recipientID}, {Key: "read_state", Value: Unread}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "read_state", Value: Read},
			{Key: "read_at", Value: s.now().UTC()},
		}}},
	)
	if err != nil {
		return 0, classifyRequest(ctx, "mark_all_read", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *MongoStore) Delete(ctx context.Context, recipientID, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := validateRecipient(recipientID); err != nil {
		return err
	}

	unlock := s.locks.Lock(recipientID)
	defer unlock()

	octx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.coll.DeleteOne(octx, bson.D{{Key: "_id", Value: id}, {Key: "recipient_id", Value: recipientID}})
	if err != nil {
		return classifyRequest(ctx, "delete", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return 0, err
	}

	octx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.coll.CountDocuments(octx, bson.D{{Key: "recipient_id", Value: recipientID}, {Key: "read_state", Value: Unread}})
	if err != nil {
		return 0, classifyRequest(ctx, "unread_count", err)
	}
	return int(n), nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	octx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.client.Ping(octx, readpref.Primary()); err != nil {
		return classifyRequest(ctx, "ping", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
