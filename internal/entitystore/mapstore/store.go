package mapstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

// Store is an entity store over a Map.
type Store struct {
	m      Map
	codec  entitystore.Codec
	logger *slog.Logger
	locks  stripes
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the record codec (default msgpack).
func WithCodec(c entitystore.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store over m.
func New(m Map, opts ...Option) *Store {
	s := &Store{
		m:      m,
		codec:  entitystore.MsgpackCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemory creates a store over a fresh MemoryMap.
func NewMemory(opts ...Option) *Store {
	return New(NewMemoryMap(), opts...)
}

// Map returns the underlying map.
func (s *Store) Map() Map { return s.m }

// NewEntityState returns a NEW state for ref. It fails with
// ErrEntityAlreadyExists if ref is already persisted.
func (s *Store) NewEntityState(ctx context.Context, ref entity.Reference, typeName string, now time.Time) (*entity.State, error) {
	_, exists, err := s.version(ctx, ref)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", entitystore.ErrEntityAlreadyExists, ref)
	}
	return entity.NewState(ref, typeName, now), nil
}

// EntityState loads the persisted state of ref.
func (s *Store) EntityState(ctx context.Context, ref entity.Reference) (*entity.State, error) {
	rec, err := s.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	st, err := rec.State()
	if err != nil {
		return nil, entitystore.WrapIO("decode "+ref.String(), err)
	}
	return st, nil
}

// Prepare locks every reference in the batch, validates versions and returns
// a committer that applies the batch. The locks are held until the committer
// is committed or cancelled; a batch overlapping one still held fails with a
// concurrent modification instead of waiting.
func (s *Store) Prepare(ctx context.Context, newStates, loadedStates, removedStates []*entity.State) (entitystore.StateCommitter, error) {
	unlock, err := s.locks.lock(entitystore.References(newStates, loadedStates, removedStates))
	if err != nil {
		s.logger.Debug("map store prepare contended", "error", err)
		return nil, err
	}

	if err := entitystore.CheckVersions(ctx, s.version, newStates, loadedStates, removedStates); err != nil {
		unlock()
		return nil, err
	}

	// Encode up front so commit only performs writes.
	type write struct {
		key  string
		data []byte
	}
	var writes []write
	for _, group := range [][]*entity.State{newStates, entitystore.Modified(loadedStates)} {
		for _, st := range group {
			rec := entitystore.NewRecord(st, entitystore.NextVersion(st))
			data, err := s.codec.Marshal(rec)
			if err != nil {
				unlock()
				return nil, err
			}
			writes = append(writes, write{key: rec.Reference, data: data})
		}
	}
	removed := entitystore.References(removedStates)

	var release sync.Once
	done := func() { release.Do(unlock) }

	return entitystore.Once(entitystore.CommitterFuncs{
		CommitFunc: func(ctx context.Context) error {
			defer done()
			for _, w := range writes {
				if err := s.m.Put(ctx, w.key, w.data); err != nil {
					return entitystore.WrapIO("put "+w.key, err)
				}
			}
			for _, ref := range removed {
				if err := s.m.Delete(ctx, ref.String()); err != nil {
					return entitystore.WrapIO("delete "+ref.String(), err)
				}
			}
			s.logger.Debug("map store commit", "written", len(writes), "removed", len(removed))
			return nil
		},
		CancelFunc: func(context.Context) error {
			done()
			return nil
		},
	}), nil
}

// EntityStates calls fn for every persisted entity in key order.
func (s *Store) EntityStates(ctx context.Context, fn func(*entity.State) error) error {
	keys, err := s.m.Keys(ctx)
	if err != nil {
		return entitystore.WrapIO("list", err)
	}
	for _, key := range keys {
		st, err := s.EntityState(ctx, entity.Reference(key))
		if errors.Is(err, entitystore.ErrEntityNotFound) {
			continue // removed while listing
		}
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context, ref entity.Reference) (entitystore.Record, error) {
	data, err := s.m.Get(ctx, ref.String())
	if errors.Is(err, ErrKeyNotFound) {
		return entitystore.Record{}, fmt.Errorf("%w: %s", entitystore.ErrEntityNotFound, ref)
	}
	if err != nil {
		return entitystore.Record{}, entitystore.WrapIO("get "+ref.String(), err)
	}
	rec, err := s.codec.Unmarshal(data)
	if err != nil {
		return entitystore.Record{}, entitystore.WrapIO("decode "+ref.String(), err)
	}
	return rec, nil
}

func (s *Store) version(ctx context.Context, ref entity.Reference) (int64, bool, error) {
	rec, err := s.load(ctx, ref)
	if errors.Is(err, entitystore.ErrEntityNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.Version, true, nil
}
