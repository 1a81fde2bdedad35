package chunkplan

import (
	"fmt"
	"strings"
)

const (
	// Target page counts outside this range produce degenerate chunks
	// (either one chunk per file or one chunk for everything).
	MinTargetPages = 10
	MaxTargetPages = 40

	// The trailing chunk must carry at least this many pages when a
	// previous chunk can spare them.
	minLastChunkPages = 9
)

// SubSegment is one unit of source material that is never split across
// chunks.
type SubSegment struct {
	Title     string   `json:"title"`
	FileRef   string   `json:"file"`
	PageCount int      `json:"page_count"`
	FileRefs  []string `json:"source_refs,omitempty"`
}

// Chunk is a planned grouping of sub-segments. It exists only between
// planning and enqueue; it is never persisted.
type Chunk struct {
	Index     int      `json:"chunk_index"`
	TopicName string   `json:"topic_name"`
	Topics    []string `json:"topics"`
	FileRefs  []string `json:"source_refs"`
	PageCount int      `json:"page_count"`
}

// ErrTargetOutOfRange is returned when the requested target page count is
// outside [MinTargetPages, MaxTargetPages].
type ErrTargetOutOfRange struct {
	Target int
}

func (e *ErrTargetOutOfRange) Error() string {
	return fmt.Sprintf("target pages per chunk %d outside allowed range [%d, %d]",
		e.Target, MinTargetPages, MaxTargetPages)
}

// Plan partitions sub-segments, in order, into chunks whose page sums
// approximate target. A sub-segment is never split: a single sub-segment
// larger than target becomes its own chunk. Deterministic for a given
// input ordering. An empty input yields an empty plan.
func Plan(segmentTitle string, subSegments []SubSegment, target int) ([]Chunk, error) {
	if target < MinTargetPages || target > MaxTargetPages {
		return nil, &ErrTargetOutOfRange{Target: target}
	}
	if len(subSegments) == 0 {
		return nil, nil
	}

	groups := groupByTarget(subSegments, target)
	groups = rebalanceLast(groups)

	chunks := make([]Chunk, 0, len(groups))
	for i, group := range groups {
		topics := make([]string, 0, len(group))
		refs := make([]string, 0, len(group))
		pages := 0
		for _, seg := range group {
			topics = append(topics, seg.Title)
			if len(seg.FileRefs) > 0 {
				refs = append(refs, seg.FileRefs...)
			} else {
				refs = append(refs, seg.FileRef)
			}
			pages += seg.PageCount
		}
		chunks = append(chunks, Chunk{
			Index:     i,
			TopicName: TopicName(segmentTitle, topics),
			Topics:    topics,
			FileRefs:  dedupeRefs(refs),
			PageCount: pages,
		})
	}
	return chunks, nil
}

// groupByTarget greedily accumulates sub-segments. At each step the next
// sub-segment joins the current chunk iff doing so keeps the page sum at
// least as close to target as cutting here would; slight overshoot is
// preferred over splitting a file.
func groupByTarget(subSegments []SubSegment, target int) [][]SubSegment {
	var groups [][]SubSegment
	var current []SubSegment
	pages := 0

	for _, seg := range subSegments {
		next := pages + seg.PageCount
		if len(current) == 0 {
			// A chunk always receives at least one sub-segment.
			current = append(current, seg)
			pages = next
			continue
		}
		if abs(next-target) <= abs(pages-target) {
			current = append(current, seg)
			pages = next
		} else {
			groups = append(groups, current)
			current = []SubSegment{seg}
			pages = seg.PageCount
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// rebalanceLast tops up an undersized trailing chunk by moving
// sub-segments from the end of the previous chunk to its front.
func rebalanceLast(groups [][]SubSegment) [][]SubSegment {
	for len(groups) > 1 {
		last := groups[len(groups)-1]
		if pageSum(last) >= minLastChunkPages {
			break
		}
		prev := groups[len(groups)-2]
		moved := prev[len(prev)-1]
		prev = prev[:len(prev)-1]
		last = append([]SubSegment{moved}, last...)
		groups[len(groups)-1] = last
		if len(prev) == 0 {
			groups = append(groups[:len(groups)-2], last)
		} else {
			groups[len(groups)-2] = prev
		}
	}
	return groups
}

// TopicName synthesizes a display name for a chunk from its member titles.
// Up to four titles are joined verbatim; larger chunks are summarized by
// count and range so the label stays bounded.
func TopicName(segmentTitle string, topics []string) string {
	clean := make([]string, 0, len(topics))
	for _, t := range topics {
		if s := strings.TrimSpace(t); s != "" {
			clean = append(clean, s)
		}
	}
	header := strings.TrimSpace(segmentTitle)
	if len(clean) == 0 {
		if header != "" {
			return header
		}
		return "Merged Topics"
	}
	if len(clean) == 1 {
		return clean[0]
	}
	if len(clean) <= 4 {
		joined := strings.Join(clean, " + ")
		if header != "" {
			return fmt.Sprintf("%s (%s)", header, joined)
		}
		return joined
	}
	first, last := clean[0], clean[len(clean)-1]
	if header != "" {
		return fmt.Sprintf("%s (%d topics: %s -> %s)", header, len(clean), first, last)
	}
	return fmt.Sprintf("%s -> %s (%d topics)", first, last, len(clean))
}

func dedupeRefs(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func pageSum(segs []SubSegment) int {
	total := 0
	for _, s := range segs {
		total += s.PageCount
	}
	return total
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
