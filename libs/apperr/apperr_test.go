package apperr

import (
	"errors"
	"fmt"
	"testing"
)

var errTaken = Conflict("slot already taken")

func TestKindAndSentinelMatching(t *testing.T) {
	err := fmt.Errorf("create appointment: %w", Wrap(errTaken, errors.New("23505")))
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %s", KindOf(err))
	}
	if !errors.Is(err, errTaken) {
		t.Fatal("expected wrapped error to match sentinel")
	}
	if MessageOf(err) != "slot already taken" {
		t.Fatalf("unexpected message %q", MessageOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors are internal")
	}
	if MessageOf(errors.New("dsn leaked")) != "internal error" {
		t.Fatal("internal messages must not leak")
	}
}
