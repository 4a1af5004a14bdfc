package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/roach88/polygene/internal/entity"
	"github.com/roach88/polygene/internal/entitystore"
	"github.com/roach88/polygene/internal/uow"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertUnitState:
		return assertUnitState(h.units[a.Unit], a)
	case AssertEntity:
		return assertEntity(ctx, h.backing, a)
	case AssertAbsent:
		return assertAbsent(ctx, h.backing, a)
	case AssertStoreCount:
		if n := h.store.Count(a.Op); n != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s calls", a.Count, a.Op),
				Actual:   fmt.Sprintf("%d", n),
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertUnitState(u *uow.UnitOfWork, a Assertion) error {
	if u == nil {
		return fmt.Errorf("unit %q was never opened", a.Unit)
	}
	if got := u.State(); got != uow.State(a.State) {
		return &AssertionError{Type: a.Type, Expected: a.State, Actual: string(got)}
	}
	return nil
}

func assertEntity(ctx context.Context, store entitystore.EntityStore, a Assertion) error {
	ref, err := entity.NewReference(a.Ref)
	if err != nil {
		return err
	}
	st, err := store.EntityState(ctx, ref)
	if err != nil {
		return fmt.Errorf("load %s: %w", a.Ref, err)
	}
	if a.Version != nil && st.Version() != *a.Version {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s at version %d", a.Ref, *a.Version),
			Actual:   fmt.Sprintf("version %d", st.Version()),
		}
	}

	names := make([]string, 0, len(a.Properties))
	for name := range a.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		want, err := entity.NormalizeValue(a.Properties[name])
		if err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		got, ok := st.Property(name)
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.Ref, name, want),
				Actual:   "no such property",
			}
		}
		if !reflect.DeepEqual(got, want) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v (%T)", a.Ref, name, want, want),
				Actual:   fmt.Sprintf("%v (%T)", got, got),
			}
		}
	}
	return nil
}

func assertAbsent(ctx context.Context, store entitystore.EntityStore, a Assertion) error {
	ref, err := entity.NewReference(a.Ref)
	if err != nil {
		return err
	}
	st, err := store.EntityState(ctx, ref)
	switch {
	case err == nil:
		return &AssertionError{
			Type:     a.Type,
			Expected: a.Ref + " absent",
			Actual:   fmt.Sprintf("version %d", st.Version()),
		}
	case errors.Is(err, entitystore.ErrEntityNotFound):
		return nil
	default:
		return fmt.Errorf("load %s: %w", a.Ref, err)
	}
}
