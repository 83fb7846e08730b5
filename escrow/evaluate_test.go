package escrow

import (
	"math/big"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestBuildEvaluationPrompt(t *testing.T) {
	job := &Job{
		ID:            uuid.New(),
		Client:        newTestAddress(0x01),
		Title:         "Build a Landing Page",
		Requirements:  "Responsive page with dark mode",
		SubmissionURL: "https://example.com/deliverable",
		Amount:        big.NewInt(1),
	}
	prompt := BuildEvaluationPrompt(job, "<html>page source</html>", 0)

	for _, fragment := range []string{
		job.Title,
		job.Requirements,
		job.SubmissionURL,
		"<html>page source</html>",
		"VERDICT: [APPROVED or REJECTED]",
		"CONFIDENCE: [HIGH, MEDIUM, or LOW]",
		"Example:\nVERDICT: APPROVED",
		"SUMMARY: The submission meets all stated requirements.",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q", fragment)
		}
	}
}

func TestBuildEvaluationPromptTruncatesContent(t *testing.T) {
	job := &Job{Title: "t", Requirements: "r", SubmissionURL: "u", Amount: big.NewInt(1)}
	content := strings.Repeat("x", 10_000)
	prompt := BuildEvaluationPrompt(job, content, 4000)

	if strings.Contains(prompt, strings.Repeat("x", 4001)) {
		t.Fatalf("content not capped at the configured limit")
	}
	if !strings.Contains(prompt, strings.Repeat("x", 4000)) {
		t.Fatalf("capped content missing from prompt")
	}
}

func TestBuildEvaluationPromptTruncatesOnRuneBoundary(t *testing.T) {
	job := &Job{Title: "t", Requirements: "r", SubmissionURL: "u", Amount: big.NewInt(1)}
	content := strings.Repeat("é", 5000) // two bytes per rune
	prompt := BuildEvaluationPrompt(job, content, 4000)

	if !strings.Contains(prompt, strings.Repeat("é", 4000)) {
		t.Fatalf("multibyte content not truncated to whole runes")
	}
	if strings.Contains(prompt, "�") {
		t.Fatalf("prompt contains a broken rune")
	}
}
