package generation

import (
	"strings"
	"testing"
)

func TestBuildPromptInterpolates(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Topic:      "Heart",
		Category:   "Thorax",
		Count:      8,
		Difficulty: 3,
		Source:     []byte("the cardiac chapter"),
	})

	for _, want := range []string{
		`write 8 original multiple-choice questions about "Heart"`,
		"at HARD difficulty",
		"Thorax",
		"the cardiac chapter",
		"Already covered: none.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptSectionOverridesAndExtras(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Topic:      "Heart",
		Count:      5,
		Difficulty: 1,
		SectionOverrides: map[string]string{
			"persona": "You are a strict examiner for {topic}.",
			"extra":   "Always cite the page number.",
			"blank":   "   ",
		},
	})

	if !strings.Contains(prompt, "You are a strict examiner for Heart.") {
		t.Error("persona override not applied")
	}
	if strings.Contains(prompt, "experienced exam question author") {
		t.Error("default persona still present after override")
	}
	if !strings.HasSuffix(strings.TrimSpace(prompt), "Always cite the page number.") {
		t.Error("extra section not appended after defaults")
	}
}

func TestBuildPromptDifficulty(t *testing.T) {
	// Unknown level falls back to level 1.
	prompt := BuildPrompt(PromptInput{Topic: "T", Count: 1, Difficulty: 9})
	if !strings.Contains(prompt, "at MEDIUM difficulty") {
		t.Error("unknown difficulty did not fall back to level 1")
	}

	prompt = BuildPrompt(PromptInput{
		Topic: "T", Count: 1, Difficulty: 2,
		DifficultyOverrides: map[string]string{"2": "impossible mode"},
	})
	if !strings.Contains(prompt, "impossible mode") {
		t.Error("difficulty override not applied")
	}
}

func TestSummarizeHistory(t *testing.T) {
	tests := []struct {
		name   string
		titles []string
		max    int
		want   string
	}{
		{"empty", nil, 10, "none"},
		{"blank only", []string{" ", ""}, 10, "none"},
		{"single", []string{"Heart valves"}, 10, "Heart valves"},
		{
			"counts most frequent first",
			[]string{"B", "A", "B", "C", "B", "A"},
			10,
			"B (x3); A (x2); C",
		},
		{
			"bounded",
			[]string{"A", "B", "C"},
			2,
			"A; B",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarizeHistory(tt.titles, tt.max); got != tt.want {
				t.Errorf("summarizeHistory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceExcerptBounded(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := sourceExcerpt([]byte(long), 10)
	if len(got) != 10 {
		t.Errorf("excerpt length = %d, want 10", len(got))
	}
	if sourceExcerpt(nil, 10) != "(no source material attached)" {
		t.Error("empty source placeholder missing")
	}
}
