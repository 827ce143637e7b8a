// Package store persists the per-day attendance record and the offline
// submission queue. Each record is a JSON document stored under a single key in
// a byte key/value backend (memory, file, sqlite, postgres or redis).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rollcall/internal/model"
)

// QueueKey is the global key holding the offline submission queue.
const QueueKey = "attendance-offline-queue"

// ErrIO marks storage that is unavailable or holds a document that cannot be
// parsed. Callers treat it as "no prior state".
var ErrIO = errors.New("local storage failure")

// DailyRecord is the persisted state for one daily key.
type DailyRecord struct {
	Attendance map[string]model.Mark `json:"attendance"`
	Locked     bool                  `json:"locked"`
}

// StateStore is the local state store used by the attendance core.
type StateStore interface {
	LoadDaily(ctx context.Context, key model.DailyKey) (DailyRecord, bool, error)
	SaveDaily(ctx context.Context, key model.DailyKey, rec DailyRecord) error
	LoadQueue(ctx context.Context) ([]model.Payload, error)
	SaveQueue(ctx context.Context, queue []model.Payload) error
	ClearQueue(ctx context.Context) error
	UpdateQueue(ctx context.Context, fn func([]model.Payload) []model.Payload) error
}

// KV is a byte key/value backend. Get reports ok=false for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Updater is implemented by backends that can read-modify-write one key as a
// single step, even when several processes share the backend. fn may run more
// than once and must not have side effects.
type Updater interface {
	Update(ctx context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error
}

// Store implements StateStore as a JSON codec over a KV backend.
type Store struct {
	kv KV
}

var _ StateStore = (*Store)(nil)

// New wraps a backend.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.kv == nil {
		return nil
	}
	return s.kv.Close()
}

// LoadDaily returns the record for key. A missing key yields ok=false and no
// error; an unreadable or unparsable one yields an ErrIO-wrapped error.
func (s *Store) LoadDaily(ctx context.Context, key model.DailyKey) (DailyRecord, bool, error) {
	data, ok, err := s.kv.Get(ctx, key.String())
	if err != nil {
		return DailyRecord{}, false, ioErr("load "+key.String(), err)
	}
	if !ok {
		return DailyRecord{}, false, nil
	}
	var rec DailyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return DailyRecord{}, false, ioErr("decode "+key.String(), err)
	}
	if rec.Attendance == nil {
		rec.Attendance = map[string]model.Mark{}
	}
	return rec, true, nil
}

// SaveDaily overwrites the record for key.
func (s *Store) SaveDaily(ctx context.Context, key model.DailyKey, rec DailyRecord) error {
	if rec.Attendance == nil {
		rec.Attendance = map[string]model.Mark{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return ioErr("encode "+key.String(), err)
	}
	if err := s.kv.Set(ctx, key.String(), data); err != nil {
		return ioErr("save "+key.String(), err)
	}
	return nil
}

// LoadQueue returns the offline queue in enqueue order, empty when absent.
func (s *Store) LoadQueue(ctx context.Context) ([]model.Payload, error) {
	data, ok, err := s.kv.Get(ctx, QueueKey)
	if err != nil {
		return nil, ioErr("load queue", err)
	}
	if !ok {
		return nil, nil
	}
	var queue []model.Payload
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, ioErr("decode queue", err)
	}
	return queue, nil
}

// SaveQueue overwrites the offline queue.
func (s *Store) SaveQueue(ctx context.Context, queue []model.Payload) error {
	if queue == nil {
		queue = []model.Payload{}
	}
	data, err := json.Marshal(queue)
	if err != nil {
		return ioErr("encode queue", err)
	}
	if err := s.kv.Set(ctx, QueueKey, data); err != nil {
		return ioErr("save queue", err)
	}
	return nil
}

// ClearQueue removes the offline queue.
func (s *Store) ClearQueue(ctx context.Context) error {
	if err := s.kv.Delete(ctx, QueueKey); err != nil {
		return ioErr("clear queue", err)
	}
	return nil
}

// UpdateQueue replaces the offline queue with fn(current). On backends that
// implement Updater the read and the write happen under one lock, so an entry
// appended by another process between them is never lost. A queue document
// that cannot be decoded is handed to fn as empty.
func (s *Store) UpdateQueue(ctx context.Context, fn func([]model.Payload) []model.Payload) error {
	apply := func(old []byte, ok bool) ([]byte, error) {
		var queue []model.Payload
		if ok {
			if err := json.Unmarshal(old, &queue); err != nil {
				queue = nil
			}
		}
		next := fn(queue)
		if next == nil {
			next = []model.Payload{}
		}
		return json.Marshal(next)
	}

	if u, ok := s.kv.(Updater); ok {
		if err := u.Update(ctx, QueueKey, apply); err != nil {
			return ioErr("update queue", err)
		}
		return nil
	}

	data, ok, err := s.kv.Get(ctx, QueueKey)
	if err != nil {
		return ioErr("load queue", err)
	}
	next, err := apply(data, ok)
	if err != nil {
		return ioErr("encode queue", err)
	}
	if err := s.kv.Set(ctx, QueueKey, next); err != nil {
		return ioErr("save queue", err)
	}
	return nil
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIO, op, err)
}
