package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(New(NotFound, "missing")); got != NotFound {
		t.Errorf("KindOf = %v, want NotFound", got)
	}
	if got := KindOf(errors.New("plain")); got != Internal {
		t.Errorf("KindOf(plain) = %v, want Internal", got)
	}
	if got := KindOf(nil); got != Internal {
		t.Errorf("KindOf(nil) = %v, want Internal", got)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := New(BrokerUnavailable, "down")
	outer := fmt.Errorf("tick failed: %w", inner)
	if !IsKind(outer, BrokerUnavailable) {
		t.Error("kind should survive fmt.Errorf wrapping")
	}
	if KindOf(outer) != BrokerUnavailable {
		t.Errorf("KindOf = %v", KindOf(outer))
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, Internal, "context")
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve the cause for errors.Is")
	}
}

func TestErrorStringCarriesCrumbs(t *testing.T) {
	err := Wrap(errors.New("boom"), Internal, "normalizing tx").
		WithSource(SourceClient).
		WithContext(CtxOverflow)
	s := err.Error()
	for _, want := range []string{"internal error", "client", "amount overflow", "normalizing tx", "boom"} {
		if !strings.Contains(s, want) {
			t.Errorf("Error() = %q, missing %q", s, want)
		}
	}
}

func TestContextOf(t *testing.T) {
	err := New(Internal, "x").WithContext(CtxHex)
	if got := ContextOf(fmt.Errorf("outer: %w", err)); got != CtxHex {
		t.Errorf("ContextOf = %q, want hex", got)
	}
	if got := ContextOf(errors.New("plain")); got != "" {
		t.Errorf("ContextOf(plain) = %q, want empty", got)
	}
}

func TestValidationFields(t *testing.T) {
	fields := map[string][]string{"raw": {"must not be empty"}}
	err := NewValidation(fields)
	if KindOf(err) != UnprocessableEntity {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	got := ValidationFields(err)
	if len(got["raw"]) != 1 || got["raw"][0] != "must not be empty" {
		t.Errorf("ValidationFields = %+v", got)
	}
}
