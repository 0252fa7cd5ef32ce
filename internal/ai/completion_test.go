package ai

import (
	"strings"
	"testing"
)

func TestExpandPromptCarriesInputs(t *testing.T) {
	system, user := expandPrompt("It was a dark night.", "one paragraph", "more atmospheric")
	if !strings.Contains(system, "Expand") {
		t.Fatalf("system prompt missing task: %q", system)
	}
	if !strings.Contains(user, "It was a dark night.") {
		t.Fatalf("user prompt missing passage: %q", user)
	}
	if !strings.Contains(user, "one paragraph") || !strings.Contains(user, "more atmospheric") {
		t.Fatalf("user prompt missing amount/option: %q", user)
	}
}

func TestShortenPromptOmitsEmptyOption(t *testing.T) {
	_, user := shortenPrompt("A very long passage.", "")
	if strings.Contains(user, "Style guidance") {
		t.Fatalf("unexpected style guidance in prompt: %q", user)
	}
	if !strings.Contains(user, "A very long passage.") {
		t.Fatalf("user prompt missing passage: %q", user)
	}
}
