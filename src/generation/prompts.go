package generation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Prompt sections are rendered in this fixed order; override keys outside
// the default set are appended after it.
var defaultSectionOrder = []string{"persona", "goal", "principles", "format_rules", "example", "closing"}

var defaultSections = map[string]string{
	"persona": `You are an experienced exam question author specializing in {category}.`,
	"goal": `Your goal: write {count} original multiple-choice questions about "{topic}", {difficulty}, using only the source material provided below.`,
	"principles": `IMPORTANT PRINCIPLES:
1. Never repeat a previously covered concept. Already covered: {history}.
2. Stay strictly within the provided source material; do not invent facts.
3. Think like a subject-matter expert and write from that perspective.`,
	"format_rules": `REQUIRED FORMAT FOR EVERY QUESTION:
Question N: <short concept title>
<question text>
A) <option>
B) <option>
C) <option>
D) <option>
E) <option>
Answer: <letter>
Explanation: <why the answer is correct>`,
	"example": `--- EXAMPLE OUTPUT FORMAT ---
Question 1: Example Concept
Which of the following statements is correct?
A) First option
B) Second option
C) Third option
D) Fourth option
E) Fifth option
Answer: B
Explanation: Short reasoning grounded in the source.`,
	"closing": `Now write all {count} questions for "{topic}" in one continuous answer.

--- SOURCE MATERIAL ---
{source}`,
}

// Difficulty descriptions by level. Level text feeds the {difficulty}
// placeholder; unknown levels fall back to level 1.
var defaultDifficultyLevels = map[string]string{
	"1": "at MEDIUM difficulty (core must-know facts and the most prominent parts of tables)",
	"2": "at MEDIUM-HARD difficulty (core facts plus distinguishing detail questions)",
	"3": "at HARD difficulty (clinical-case style and detail questions for high scorers)",
	"4": "at HARD to VERY HARD difficulty (for top-ranking candidates)",
}

const (
	DefaultMaxHistoryTitles = 200
	DefaultMaxSourceChars   = 60000
)

// PromptInput carries everything the prompt template needs for one batch.
type PromptInput struct {
	Topic               string
	Category            string
	Count               int
	Difficulty          int
	HistoryTitles       []string
	Source              []byte
	SectionOverrides    map[string]string
	DifficultyOverrides map[string]string
	MaxHistoryTitles    int
	MaxSourceChars      int
}

// BuildPrompt renders the section templates with the input interpolated.
// Override sections replace defaults by key; extra override keys are
// appended after the default order, sorted for determinism.
func BuildPrompt(in PromptInput) string {
	sections := make(map[string]string, len(defaultSections)+len(in.SectionOverrides))
	for k, v := range defaultSections {
		sections[k] = v
	}
	var extras []string
	for k, v := range in.SectionOverrides {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, isDefault := sections[k]; !isDefault {
			extras = append(extras, k)
		}
		sections[k] = v
	}
	sort.Strings(extras)
	order := append(append([]string{}, defaultSectionOrder...), extras...)

	replacer := strings.NewReplacer(
		"{topic}", in.Topic,
		"{category}", in.Category,
		"{count}", strconv.Itoa(in.Count),
		"{difficulty}", difficultyText(in.Difficulty, in.DifficultyOverrides),
		"{history}", summarizeHistory(in.HistoryTitles, limitOr(in.MaxHistoryTitles, DefaultMaxHistoryTitles)),
		"{source}", sourceExcerpt(in.Source, limitOr(in.MaxSourceChars, DefaultMaxSourceChars)),
	)

	parts := make([]string, 0, len(order))
	for _, key := range order {
		raw := sections[key]
		if raw == "" {
			continue
		}
		parts = append(parts, replacer.Replace(raw))
	}
	return strings.Join(parts, "\n\n")
}

func difficultyText(level int, overrides map[string]string) string {
	levels := make(map[string]string, len(defaultDifficultyLevels))
	for k, v := range defaultDifficultyLevels {
		levels[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) != "" {
			levels[k] = v
		}
	}
	if text, ok := levels[strconv.Itoa(level)]; ok {
		return text
	}
	return levels["1"]
}

// summarizeHistory collapses prior titles into "title (xN)" pairs, most
// frequent first, bounded to keep token usage flat regardless of how much
// history a scope has accumulated.
func summarizeHistory(titles []string, maxTitles int) string {
	if len(titles) == 0 {
		return "none"
	}

	counts := make(map[string]int, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		counts[t]++
	}
	if len(counts) == 0 {
		return "none"
	}

	type titleCount struct {
		title string
		count int
	}
	sorted := make([]titleCount, 0, len(counts))
	for t, c := range counts {
		sorted = append(sorted, titleCount{t, c})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].title < sorted[j].title
	})
	if len(sorted) > maxTitles {
		sorted = sorted[:maxTitles]
	}

	parts := make([]string, 0, len(sorted))
	for _, tc := range sorted {
		if tc.count > 1 {
			parts = append(parts, fmt.Sprintf("%s (x%d)", tc.title, tc.count))
		} else {
			parts = append(parts, tc.title)
		}
	}
	return strings.Join(parts, "; ")
}

func sourceExcerpt(source []byte, maxChars int) string {
	if len(source) == 0 {
		return "(no source material attached)"
	}
	text := string(source)
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return text
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
