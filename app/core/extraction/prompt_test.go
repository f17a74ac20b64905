package extraction

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSystemPromptEmbedsReferenceDate(t *testing.T) {
	today := time.Date(2026, 8, 28, 15, 4, 5, 0, time.UTC)
	prompt := BuildSystemPrompt(today)

	if !strings.Contains(prompt, "Today's date is 2026-08-28.") {
		t.Fatalf("prompt missing reference date:\n%s", prompt)
	}
}

func TestBuildSystemPromptIsDeterministic(t *testing.T) {
	today := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if BuildSystemPrompt(today) != BuildSystemPrompt(today) {
		t.Fatal("prompt should be identical for the same date")
	}
}

func TestBuildSystemPromptStatesContract(t *testing.T) {
	prompt := BuildSystemPrompt(time.Now())

	for _, want := range []string{
		"Task Essentials",
		`"type":"confirmation"`,
		"taskData",
		"SINGLE, direct, friendly question",
		"Exactly one shape per turn",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
