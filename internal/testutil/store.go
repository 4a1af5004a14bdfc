package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
)

// StoreEvent is one call observed by a RecordingStore.
type StoreEvent struct {
	Op      string   `yaml:"op"`
	Refs    []string `yaml:"refs,omitempty"`
	New     []string `yaml:"new,omitempty"`
	Loaded  []string `yaml:"loaded,omitempty"`
	Removed []string `yaml:"removed,omitempty"`
	Error   string   `yaml:"error,omitempty"`
	Err     error    `yaml:"-"`
}

func (e StoreEvent) String() string {
	var parts []string
	parts = append(parts, e.Op)
	for _, g := range []struct {
		name string
		refs []string
	}{{"refs", e.Refs}, {"new", e.New}, {"loaded", e.Loaded}, {"removed", e.Removed}} {
		if len(g.refs) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%s", g.name, strings.Join(g.refs, ",")))
		}
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	return strings.Join(parts, " ")
}

// RecordingStore wraps an entity store, records every call, and can inject
// prepare failures.
//
// Thread-safety: safe for concurrent use if the inner store is.
type RecordingStore struct {
	inner entitystore.EntityStore

	mu            sync.Mutex
	events        []StoreEvent
	prepareErrors []error
}

// NewRecordingStore wraps inner.
func NewRecordingStore(inner entitystore.EntityStore) *RecordingStore {
	return &RecordingStore{inner: inner}
}

// FailPrepares queues errors returned by the next prepare calls, in order.
// A nil entry lets that call through.
func (s *RecordingStore) FailPrepares(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepareErrors = append(s.prepareErrors, errs...)
}

// ConflictNext makes the next n prepare calls fail with a concurrent
// modification naming the batch's references.
func (s *RecordingStore) ConflictNext(n int) {
	for i := 0; i < n; i++ {
		s.FailPrepares(errConflict)
	}
}

// errConflict is replaced by a conflict naming the prepared references.
var errConflict = errors.New("scripted conflict")

// Events returns a copy of the recorded calls.
func (s *RecordingStore) Events() []StoreEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoreEvent(nil), s.events...)
}

// Count returns how many recorded calls had op.
func (s *RecordingStore) Count(op string) int {
	n := 0
	for _, e := range s.Events() {
		if e.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls and queued failures.
func (s *RecordingStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.prepareErrors = nil
}

func (s *RecordingStore) record(e StoreEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func event(op string, refs []string, err error) StoreEvent {
	return StoreEvent{Op: op, Refs: refs, Error: errString(err), Err: err}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func refsOf(states []*entity.State) []string {
	var out []string
	for _, st := range states {
		out = append(out, st.Reference().String())
	}
	return out
}

func (s *RecordingStore) NewEntityState(ctx context.Context, ref entity.Reference, typeName string, now time.Time) (*entity.State, error) {
	st, err := s.inner.NewEntityState(ctx, ref, typeName, now)
	s.record(event("new", []string{ref.String()}, err))
	return st, err
}

func (s *RecordingStore) EntityState(ctx context.Context, ref entity.Reference) (*entity.State, error) {
	st, err := s.inner.EntityState(ctx, ref)
	s.record(event("load", []string{ref.String()}, err))
	return st, err
}

func (s *RecordingStore) Prepare(ctx context.Context, newStates, loadedStates, removedStates []*entity.State) (entitystore.StateCommitter, error) {
	ev := StoreEvent{
		Op:      "prepare",
		New:     refsOf(newStates),
		Loaded:  refsOf(loadedStates),
		Removed: refsOf(removedStates),
	}

	s.mu.Lock()
	var injected error
	if len(s.prepareErrors) > 0 {
		injected = s.prepareErrors[0]
		s.prepareErrors = s.prepareErrors[1:]
	}
	s.mu.Unlock()

	if injected == errConflict {
		injected = entitystore.NewConcurrentModificationError(entitystore.References(newStates, loadedStates, removedStates)...)
	}
	if injected != nil {
		ev.Error = injected.Error()
		ev.Err = injected
		s.record(ev)
		return nil, injected
	}

	c, err := s.inner.Prepare(ctx, newStates, loadedStates, removedStates)
	ev.Error = errString(err)
	ev.Err = err
	s.record(ev)
	if err != nil {
		return nil, err
	}
	return entitystore.CommitterFuncs{
		CommitFunc: func(ctx context.Context) error {
			err := c.Commit(ctx)
			s.record(event("commit", nil, err))
			return err
		},
		CancelFunc: func(ctx context.Context) error {
			err := c.Cancel(ctx)
			s.record(event("cancel", nil, err))
			return err
		},
	}, nil
}

// EntityStates forwards to the inner store when it lists.
func (s *RecordingStore) EntityStates(ctx context.Context, fn func(*entity.State) error) error {
	lister, ok := s.inner.(entitystore.Lister)
	if !ok {
		return fmt.Errorf("inner store %T does not list", s.inner)
	}
	return lister.EntityStates(ctx, fn)
}
