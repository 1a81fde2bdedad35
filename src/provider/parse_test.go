package provider

import "testing"

const sampleBulkText = `Here are your questions.

Question 1: Heart valves
Which valve separates the left atrium from the left ventricle?
A) Tricuspid valve
B) Mitral valve
C) Aortic valve
D) Pulmonary valve
Answer: B
Explanation: The mitral valve sits between the left atrium
and the left ventricle.

Question 2: Coronary supply
Which artery usually supplies the sinoatrial node?
A) Left anterior descending
B) Circumflex
C) Right coronary artery
Answer: C
Explanation: In most individuals the SA nodal branch arises from the RCA.
`

func TestParseItems(t *testing.T) {
	items := ParseItems(sampleBulkText)
	if len(items) != 2 {
		t.Fatalf("parsed %d items, want 2", len(items))
	}

	first := items[0]
	if first.Title != "Heart valves" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Question != "Which valve separates the left atrium from the left ventricle?" {
		t.Errorf("question = %q", first.Question)
	}
	if len(first.Options) != 4 {
		t.Fatalf("options = %v", first.Options)
	}
	if first.Options[1] != "Mitral valve" {
		t.Errorf("option B = %q", first.Options[1])
	}
	if first.CorrectIndex != 1 {
		t.Errorf("correct index = %d, want 1", first.CorrectIndex)
	}
	if first.Explanation != "The mitral valve sits between the left atrium\nand the left ventricle." {
		t.Errorf("explanation = %q", first.Explanation)
	}

	if items[1].CorrectIndex != 2 {
		t.Errorf("second correct index = %d, want 2", items[1].CorrectIndex)
	}
}

func TestParseItemsDropsInvalidBlocks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "missing answer",
			text: "Question 1: T\nBody?\nA) x\nB) y\nExplanation: e\n",
			want: 0,
		},
		{
			name: "answer outside option range",
			text: "Question 1: T\nBody?\nA) x\nB) y\nAnswer: D\n",
			want: 0,
		},
		{
			name: "single option",
			text: "Question 1: T\nBody?\nA) x\nAnswer: A\n",
			want: 0,
		},
		{
			name: "missing question text",
			text: "Question 1: T\nA) x\nB) y\nAnswer: A\n",
			want: 0,
		},
		{
			name: "no headers at all",
			text: "The model refused to comply with the format.",
			want: 0,
		},
		{
			name: "invalid block between valid ones",
			text: "Question 1: T\nBody?\nA) x\nB) y\nAnswer: A\n" +
				"Question 2: broken\nno options here\n" +
				"Question 3: T3\nBody?\nA) x\nB) y\nAnswer: B\n",
			want: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(ParseItems(tt.text)); got != tt.want {
				t.Errorf("parsed %d items, want %d", got, tt.want)
			}
		})
	}
}

func TestParseItemsOptionContinuation(t *testing.T) {
	text := "Question 1: T\nBody?\nA) a long option\nthat wraps to a second line\nB) short\nAnswer: A\n"
	items := ParseItems(text)
	if len(items) != 1 {
		t.Fatalf("parsed %d items, want 1", len(items))
	}
	if items[0].Options[0] != "a long option that wraps to a second line" {
		t.Errorf("option A = %q", items[0].Options[0])
	}
}

func TestParseItemsMarkdownDecorations(t *testing.T) {
	text := "Question 1: T\nBody?\nA) x\nB) y\n**Answer:** B\n**Explanation:** because\n"
	items := ParseItems(text)
	if len(items) != 1 {
		t.Fatalf("parsed %d items, want 1", len(items))
	}
	if items[0].CorrectIndex != 1 {
		t.Errorf("correct index = %d, want 1", items[0].CorrectIndex)
	}
	if items[0].Explanation != "because" {
		t.Errorf("explanation = %q", items[0].Explanation)
	}
}
