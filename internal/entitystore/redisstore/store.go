package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

const (
	defaultPrefix  = "polygene"
	defaultLockTTL = 30 * time.Second
)

// releaseScript deletes a lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps entities in Redis hashes.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	lockTTL time.Duration
	codec   entitystore.MsgpackCodec
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix (default "polygene").
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithLockTTL sets how long prepare locks live (default 30s).
func WithLockTTL(d time.Duration) Option {
	return func(s *Store) { s.lockTTL = d }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store over client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:  client,
		prefix:  defaultPrefix,
		lockTTL: defaultLockTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) entityKey(ref entity.Reference) string {
	return s.prefix + ":entity:" + ref.String()
}

func (s *Store) lockKey(ref entity.Reference) string {
	return s.prefix + ":lock:" + ref.String()
}

func (s *Store) indexKey() string {
	return s.prefix + ":entities"
}

// NewEntityState returns a NEW state for ref unless ref is persisted.
func (s *Store) NewEntityState(ctx context.Context, ref entity.Reference, typeName string, now time.Time) (*entity.State, error) {
	n, err := s.client.Exists(ctx, s.entityKey(ref)).Result()
	if err != nil {
		return nil, entitystore.WrapIO("exists "+ref.String(), err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", entitystore.ErrEntityAlreadyExists, ref)
	}
	return entity.NewState(ref, typeName, now), nil
}

// EntityState loads the persisted state of ref.
func (s *Store) EntityState(ctx context.Context, ref entity.Reference) (*entity.State, error) {
	data, err := s.client.HGet(ctx, s.entityKey(ref), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", entitystore.ErrEntityNotFound, ref)
	}
	if err != nil {
		return nil, entitystore.WrapIO("get "+ref.String(), err)
	}
	rec, err := s.codec.Unmarshal(data)
	if err != nil {
		return nil, entitystore.WrapIO("decode "+ref.String(), err)
	}
	st, err := rec.State()
	if err != nil {
		return nil, entitystore.WrapIO("decode "+ref.String(), err)
	}
	return st, nil
}

// Prepare locks the batch, validates versions and returns a committer that
// writes the batch atomically.
func (s *Store) Prepare(ctx context.Context, newStates, loadedStates, removedStates []*entity.State) (entitystore.StateCommitter, error) {
	refs := entitystore.References(newStates, loadedStates, removedStates)
	held, err := s.lock(ctx, refs)
	if err != nil {
		return nil, err
	}
	release := func(ctx context.Context) error {
		return s.unlock(ctx, held)
	}

	if err := entitystore.CheckVersions(ctx, s.version, newStates, loadedStates, removedStates); err != nil {
		_ = release(context.WithoutCancel(ctx))
		return nil, err
	}

	type write struct {
		rec  entitystore.Record
		data []byte
	}
	var writes []write
	for _, group := range [][]*entity.State{newStates, entitystore.Modified(loadedStates)} {
		for _, st := range group {
			rec := entitystore.NewRecord(st, entitystore.NextVersion(st))
			data, err := s.codec.Marshal(rec)
			if err != nil {
				_ = release(context.WithoutCancel(ctx))
				return nil, err
			}
			writes = append(writes, write{rec: rec, data: data})
		}
	}
	removed := entitystore.References(removedStates)

	return entitystore.Once(entitystore.CommitterFuncs{
		CommitFunc: func(ctx context.Context) error {
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("redis store unlock failed", "error", err)
				}
			}()
			_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, w := range writes {
					ref := entity.Reference(w.rec.Reference)
					pipe.HSet(ctx, s.entityKey(ref),
						"type", w.rec.Type,
						"version", w.rec.Version,
						"data", w.data)
					pipe.ZAdd(ctx, s.indexKey(), redis.Z{Member: w.rec.Reference})
				}
				for _, ref := range removed {
					pipe.Del(ctx, s.entityKey(ref))
					pipe.ZRem(ctx, s.indexKey(), ref.String())
				}
				return nil
			})
			if err != nil {
				return entitystore.WrapIO("commit", err)
			}
			s.logger.Debug("redis store commit", "written", len(writes), "removed", len(removed))
			return nil
		},
		CancelFunc: func(ctx context.Context) error {
			if err := release(ctx); err != nil {
				return entitystore.WrapIO("unlock", err)
			}
			return nil
		},
	}), nil
}

type heldLock struct {
	key   string
	token string
}

// lock acquires one lock per distinct reference in sorted order. A lock held
// elsewhere releases everything taken so far and reports a conflict.
func (s *Store) lock(ctx context.Context, refs []entity.Reference) ([]heldLock, error) {
	unique := make([]entity.Reference, 0, len(refs))
	seen := make(map[entity.Reference]bool, len(refs))
	for _, ref := range refs {
		if !seen[ref] {
			seen[ref] = true
			unique = append(unique, ref)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	held := make([]heldLock, 0, len(unique))
	for _, ref := range unique {
		l := heldLock{key: s.lockKey(ref), token: uuid.NewString()}
		ok, err := s.client.SetNX(ctx, l.key, l.token, s.lockTTL).Result()
		if err != nil {
			_ = s.unlock(context.WithoutCancel(ctx), held)
			return nil, entitystore.WrapIO("lock "+ref.String(), err)
		}
		if !ok {
			_ = s.unlock(context.WithoutCancel(ctx), held)
			return nil, entitystore.NewConcurrentModificationError(ref)
		}
		held = append(held, l)
	}
	return held, nil
}

func (s *Store) unlock(ctx context.Context, held []heldLock) error {
	var errs []error
	for _, l := range held {
		if err := releaseScript.Run(ctx, s.client, []string{l.key}, l.token).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) version(ctx context.Context, ref entity.Reference) (int64, bool, error) {
	raw, err := s.client.HGet(ctx, s.entityKey(ref), "version").Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, entitystore.WrapIO("version "+ref.String(), err)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, entitystore.WrapIO("version "+ref.String(), err)
	}
	return v, true, nil
}

// EntityStates calls fn for every persisted entity in reference order.
func (s *Store) EntityStates(ctx context.Context, fn func(*entity.State) error) error {
	refs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return entitystore.WrapIO("list", err)
	}
	for _, id := range refs {
		st, err := s.EntityState(ctx, entity.Reference(id))
		if errors.Is(err, entitystore.ErrEntityNotFound) {
			continue
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
