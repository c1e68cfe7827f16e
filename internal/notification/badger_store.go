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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/beacon/internal/keylock"
	"github.com/tomtom215/beacon/internal/logging"
)

// Key layout:
//
//	n/<id>                          record (JSON)
//	r/<recipient>\x00<sortKey>      recipient timeline, empty value
//	u/<recipient>\x00<id>           unread marker, empty value
//	b/<sortKey>                     broadcast audit, empty value
const (
	recordPrefix    = "n/"
	timelinePrefix  = "r/"
	unreadPrefix    = "u/"
	broadcastPrefix = "b/"

	conflictRetries = 3
)

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	Path     string
	InMemory bool
}

// BadgerStore is a Store on an embedded BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool
	locks  *keylock.Locker

	now   func() time.Time
	newID func() string
}

// OpenBadger opens (or creates) a database and returns a store that closes
// it on Close.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %q: %w", ErrStoreUnavailable, opts.Path, err)
	}

	s := NewBadgerStore(db)
	s.ownsDB = true
	return s, nil
}

// NewBadgerStore uses an already open database. Close does not close db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{
		db:    db,
		locks: keylock.New(),
		now:   time.Now,
		newID: newID,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *BadgerStore) Create(ctx context.Context, recipientID string, c Content) (*Notification, error) {
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

	n := &Notification{
		ID:          s.newID(),
		RecipientID: recipientID,
		Kind:        c.Kind,
		Title:       c.Title,
		Body:        c.Body,
		Attributes:  attrs,
		ReadState:   Unread,
		CreatedAt:   s.now().UTC(),
	}
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}

	err = s.update("create", func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(n.ID), data); err != nil {
			return err
		}
		if n.IsBroadcast() {
			return txn.Set([]byte(broadcastPrefix+sortKey(n.CreatedAt, n.ID)), nil)
		}
		if err := txn.Set(timelineKey(n.RecipientID, n.CreatedAt, n.ID), nil); err != nil {
			return err
		}
		return txn.Set(unreadKey(n.RecipientID, n.ID), nil)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *BadgerStore) ListForRecipient(ctx context.Context, recipientID string, p Page) (*PageResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return nil, err
	}
	return s.list("list", timelinePrefix+recipientID+"\x00", p)
}

func (s *BadgerStore) ListBroadcasts(ctx context.Context, p Page) (*PageResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return s.list("list_broadcasts", broadcastPrefix, p)
}

// list walks an index whose keys are prefix+sortKey and resolves each entry
// to its record inside one read transaction.
func (s *BadgerStore) list(op, prefix string, p Page) (*PageResult, error) {
	p = p.normalized()

	var start []byte
	if p.Cursor != "" {
		key, err := decodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
		start = []byte(prefix + key)
	}

	result := &PageResult{Items: make([]*Notification, 0, p.Limit)}
	err := s.view(op, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: []byte(prefix)})
		defer it.Close()

		if start != nil {
			it.Seek(start)
			if it.ValidForPrefix([]byte(prefix)) && string(it.Item().Key()) == string(start) {
				it.Next()
			}
		} else {
			it.Seek([]byte(prefix))
			for skipped := 0; skipped < p.Offset && it.ValidForPrefix([]byte(prefix)); skipped++ {
				it.Next()
			}
		}

		var lastKey string
		for ; it.ValidForPrefix([]byte(prefix)); it.Next() {
			key := string(it.Item().Key()[len(prefix):])
			if len(result.Items) == p.Limit {
				result.NextCursor = encodeCursor(lastKey)
				return nil
			}
			_, id, err := parseSortKey(key)
			if err != nil {
				return fmt.Errorf("corrupt index key %q: %w", key, err)
			}
			n, err := getRecord(txn, id)
			if errors.Is(err, ErrNotFound) {
				logging.Warn().Str("id", id).Str("index", prefix).Msg("Index entry without record")
				continue
			}
			if err != nil {
				return err
			}
			result.Items = append(result.Items, n)
			lastKey = key
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BadgerStore) MarkRead(ctx context.Context, recipientID, id string) (*Notification, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(recipientID)
	defer unlock()

	var out *Notification
	err := s.update("mark_read", func(txn *badger.Txn) error {
		n, err := getOwned(txn, recipientID, id)
		if err != nil {
			return err
		}
		if n.ReadState == Read {
			out = n
			return nil
		}
		if err := markRecordRead(txn, n, s.now().UTC()); err != nil {
			return err
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(recipientID)
	defer unlock()

	var ids []string
	prefix := []byte(unreadPrefix + recipientID + "\x00")
	err := s.view("mark_all_read", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// One transaction when it fits. Badger rejects oversized transactions
	// with ErrTxnTooBig before committing anything, so the batch is halved
	// and retried. The recipient lock is held across batches, so no MarkRead
	// or Delete for this recipient can interleave.
	readAt := s.now().UTC()
	count := 0
	size := len(ids)
	for start := 0; start < len(ids); {
		end := min(start+size, len(ids))
		changed, err := s.markBatchRead(recipientID, ids[start:end], readAt)
		if errors.Is(err, badger.ErrTxnTooBig) && size > 1 {
			size = max(size/2, 1)
			continue
		}
		if err != nil {
			return count, err
		}
		count += changed
		start = end
	}
	return count, nil
}

func (s *BadgerStore) markBatchRead(recipientID string, ids []string, readAt time.Time) (int, error) {
	changed := 0
	err := s.update("mark_all_read", func(txn *badger.Txn) error {
		changed = 0
		for _, id := range ids {
			n, err := getRecord(txn, id)
			if errors.Is(err, ErrNotFound) {
				if err := txn.Delete(unreadKey(recipientID, id)); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if n.ReadState == Read {
				continue
			}
			if err := markRecordRead(txn, n, readAt); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	return changed, err
}

func (s *BadgerStore) Delete(ctx context.Context, recipientID, id string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := validateRecipient(recipientID); err != nil {
		return err
	}

	unlock := s.locks.Lock(recipientID)
	defer unlock()

	return s.update("delete", func(txn *badger.Txn) error {
		n, err := getOwned(txn, recipientID, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(recordKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(timelineKey(recipientID, n.CreatedAt, id)); err != nil {
			return err
		}
		return txn.Delete(unreadKey(recipientID, id))
	})
}

func (s *BadgerStore) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}
	if err := validateRecipient(recipientID); err != nil {
		return 0, err
	}

	count := 0
	prefix := []byte(unreadPrefix + recipientID + "\x00")
	err := s.view("unread_count", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("%w: database closed", ErrStoreUnavailable)
	}
	return s.view("ping", func(*badger.Txn) error { return nil })
}

func (s *BadgerStore) Close() error {
	if !s.ownsDB || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// RunGC reclaims value-log space until badger reports nothing left to
// rewrite. In-memory databases have no value log and return nil.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	for {
		err := s.db.RunValueLogGC(discardRatio)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return err
		}
	}
}

func (s *BadgerStore) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return classify(op, err)
}

func (s *BadgerStore) view(op string, fn func(txn *badger.Txn) error) error {
	return classify(op, s.db.View(fn))
}

// classify passes request errors through and marks everything else as a
// backend failure.
func classify(op string, err error) error {
	if err == nil || IsClientError(err) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// classifyRequest attributes a failure to the caller when its context is
// already done, and to the backend otherwise.
func classifyRequest(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%s: %w", op, cerr)
	}
	return classify(op, err)
}

func getRecord(txn *badger.Txn, id string) (*Notification, error) {
	item, err := txn.Get(recordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var n Notification
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &n)
	}); err != nil {
		return nil, fmt.Errorf("decode notification %s: %w", id, err)
	}
	return &n, nil
}

func getOwned(txn *badger.Txn, recipientID, id string) (*Notification, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	n, err := getRecord(txn, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != recipientID {
		return nil, ErrNotFound
	}
	return n, nil
}

func markRecordRead(txn *badger.Txn, n *Notification, at time.Time) error {
	n.ReadState = Read
	n.ReadAt = &at
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := txn.Set(recordKey(n.ID), data); err != nil {
		return err
	}
	return txn.Delete(unreadKey(n.RecipientID, n.ID))
}

func recordKey(id string) []byte {
	return []byte(recordPrefix + id)
}

func timelineKey(recipientID string, createdAt time.Time, id string) []byte {
	return []byte(timelinePrefix + recipientID + "\x00" + sortKey(createdAt, id))
}

func unreadKey(recipientID, id string) []byte {
	return []byte(unreadPrefix + recipientID + "\x00" + id)
}
