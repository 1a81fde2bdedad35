package provider

import (
	"regexp"
	"strings"
)

var (
	blockHeaderRe = regexp.MustCompile(`(?mi)^\s*question\s+\d+\s*:\s*`)
	optionRe      = regexp.MustCompile(`^([A-E])[\)\.]\s*(.+)$`)
	answerRe      = regexp.MustCompile(`(?i)^\**answer\**\s*[:\-]\s*\**\s*([A-E])\b`)
	explanationRe = regexp.MustCompile(`(?i)^\**explanation\**\s*:\s*\**\s*(.*)$`)
)

// ParseItems extracts question blocks of the bulk text format:
//
//	Question 1: <title>
//	<question text>
//	A) <option> ... E) <option>
//	Answer: <letter>
//	Explanation: <text>
//
// Blocks that fail structural validation (no title, fewer than two
// options, answer letter outside the option range) are dropped silently;
// the caller treats a short result as generation shortfall, never as
// partial corruption.
func ParseItems(text string) []Item {
	headers := blockHeaderRe.FindAllStringIndex(text, -1)
	if len(headers) == 0 {
		return nil
	}

	items := make([]Item, 0, len(headers))
	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		if item, ok := parseBlock(text[h[1]:end]); ok {
			items = append(items, item)
		}
	}
	return items
}

func parseBlock(block string) (Item, bool) {
	lines := strings.Split(block, "\n")
	if len(lines) == 0 {
		return Item{}, false
	}

	item := Item{
		Title:        strings.TrimSpace(lines[0]),
		CorrectIndex: -1,
	}

	var (
		questionLines    []string
		explanationLines []string
		inExplanation    bool
		answerLetter     byte
	)
	for _, raw := range lines[1:] {
		line := strings.TrimSpace(raw)

		if inExplanation {
			explanationLines = append(explanationLines, line)
			continue
		}
		if m := explanationRe.FindStringSubmatch(line); m != nil {
			inExplanation = true
			if m[1] != "" {
				explanationLines = append(explanationLines, m[1])
			}
			continue
		}
		if m := answerRe.FindStringSubmatch(line); m != nil {
			answerLetter = strings.ToUpper(m[1])[0]
			continue
		}
		if m := optionRe.FindStringSubmatch(line); m != nil {
			item.Options = append(item.Options, strings.TrimSpace(m[2]))
			continue
		}
		if line == "" {
			continue
		}
		if len(item.Options) == 0 {
			questionLines = append(questionLines, line)
		} else {
			// Wrapped continuation of the previous option.
			last := len(item.Options) - 1
			item.Options[last] = item.Options[last] + " " + line
		}
	}

	item.Question = strings.TrimSpace(strings.Join(questionLines, "\n"))
	item.Explanation = strings.TrimSpace(strings.Join(explanationLines, "\n"))
	if answerLetter != 0 {
		item.CorrectIndex = int(answerLetter - 'A')
	}

	if item.Title == "" || item.Question == "" {
		return Item{}, false
	}
	if len(item.Options) < 2 {
		return Item{}, false
	}
	if item.CorrectIndex < 0 || item.CorrectIndex >= len(item.Options) {
		return Item{}, false
	}
	return item, true
}
