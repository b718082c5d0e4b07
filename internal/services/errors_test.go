package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"verdandi/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTimeout, "deep_research", "search", "request timed out", base)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"deep_research", "search", "request timed out"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, ""},
		{"unmarked", errors.New("socket reset"), services.KindTransient},
		{"timeout", services.Wrap(services.ErrTimeout, "deploy", "upload", "", nil), services.KindTransient},
		{"rate limited", fmt.Errorf("call: %w", services.ErrRateLimited), services.KindTransient},
		{"validation", services.Wrap(services.ErrValidation, "scoring", "parse", "bad json", nil), services.KindPermanent},
		{"permanent", services.ErrPermanent, services.KindPermanent},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), services.KindPermanent},
		{"circuit", fmt.Errorf("llm: %w", services.ErrCircuitOpen), services.KindCircuitOpen},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: KindOf = %q, want %q", tc.name, got, tc.want)
		}
	}
}
