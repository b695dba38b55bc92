package uierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct engine error", Newf(NotFound, "button %q", "ok"), NotFound},
		{"wrapped engine error", fmt.Errorf("discovery: %w", New(Timeout, "deadline passed")), Timeout},
		{"wrapped twice", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", New(Duplicate, "name collision"))), Duplicate},
		{"plain error", errors.New("disk full"), Unknown},
		{"nil", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := Wrapf(InvalidState, errors.New("two checked"), "radio group %q", "options")
	if !Is(err, InvalidState) {
		t.Error("Is(err, InvalidState) = false, want true")
	}
	if Is(err, NotFound) {
		t.Error("Is(err, NotFound) = true, want false")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("capture failed")
	err := Wrap(NotFound, cause, "anchor image")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(Ambiguous, "scores tied at 0.8")
	if got, want := err.Error(), "ambiguous: scores tied at 0.8"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := Wrap(Timeout, errors.New("slept 5s"), "element 2 never unchecked")
	if got, want := wrapped.Error(), "timeout: element 2 never unchecked: slept 5s"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
