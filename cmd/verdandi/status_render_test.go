package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"verdandi/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Store", statusError, "integrity check failed", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Store:", "[FAIL] integrity check failed")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Store", statusOK, "sqlite", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestPreflightLines(t *testing.T) {
	results := []preflight.Result{
		{Name: "Data directory", Passed: true, Detail: "/data"},
		{Name: "Notifications", Passed: false, Detail: "ntfy unreachable"},
	}
	lines := preflightLines(results, false)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Preflight") {
		t.Fatalf("expected header, got %q", lines[0])
	}
	if !strings.Contains(lines[3], "[FAIL] ntfy unreachable") {
		t.Fatalf("expected failed check line, got %q", lines[3])
	}
	if last := lines[4]; !strings.Contains(last, "[FAIL]") || !strings.Contains(last, "1 of 2 checks passed") {
		t.Fatalf("unexpected summary %q", last)
	}
}

func TestRenderTablePlainWhenPiped(t *testing.T) {
	var buf bytes.Buffer
	got := renderTable(&buf, []string{"ID", "Title"}, [][]string{{"1", "Invoice Chaser"}, {"2"}}, []columnAlignment{alignRight})
	if strings.ContainsAny(got, "╭│") {
		t.Fatalf("expected ASCII table for non-terminal output:\n%s", got)
	}
	if !strings.Contains(got, "Invoice Chaser") || !strings.HasSuffix(got, "\n") {
		t.Fatalf("unexpected table:\n%s", got)
	}
	if renderTable(&buf, nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestStageTitle(t *testing.T) {
	cases := map[string]string{
		"deep_research":  "Deep Research",
		"mvp_definition": "Mvp Definition",
		"":               "-",
	}
	for in, want := range cases {
		if got := stageTitle(in); got != want {
			t.Fatalf("stageTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
