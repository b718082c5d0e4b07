package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// stageTitle renders a stage identifier such as deep_research as "Deep Research".
func stageTitle(name string) string {
	if name == "" {
		return "-"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

// shortTime trims API timestamps to minute precision for tables.
func shortTime(value string) string {
	if len(value) < 16 {
		return value
	}
	return strings.Replace(value[:16], "T", " ", 1)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
