package sourcestore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"quizforge/src/log"
)

// ErrNotFound is returned when a source ref does not exist in the store.
var ErrNotFound = errors.New("source object not found")

// Store holds source material texts addressed by ref. Merged working
// sources produced by Merge live in the same store under derived refs.
type Store interface {
	Get(ctx context.Context, ref string) ([]byte, error)
	Put(ctx context.Context, ref string, data []byte) error
	Exists(ctx context.Context, ref string) (bool, error)
}

const mergedPrefix = "merged/"

// MergedRef derives the cache ref for a set of source refs. The ref is
// content-derived (hash of the sorted set), so any job referencing the
// same set lands on the same object regardless of list order.
func MergedRef(refs []string) string {
	sorted := make([]string, len(refs))
	copy(sorted, refs)
	sort.Strings(sorted)

	h := sha1.Sum([]byte(strings.Join(sorted, "\n")))
	return mergedPrefix + hex.EncodeToString(h[:]) + ".txt"
}

// Merge returns one working source for the given refs. A single ref is
// read directly. Multiple refs are concatenated in sorted order with ref
// headers and cached under MergedRef; concurrent writers may race on the
// cache object, which is safe because the merge output is deterministic.
func Merge(ctx context.Context, store Store, refs []string) ([]byte, error) {
	refs = dedupe(refs)
	if len(refs) == 0 {
		return nil, errors.New("no source refs given")
	}
	if len(refs) == 1 {
		return store.Get(ctx, refs[0])
	}

	cacheRef := MergedRef(refs)
	exists, err := store.Exists(ctx, cacheRef)
	if err != nil {
		log.Error(err, "failed to check merged source cache; remerging", "ref", cacheRef)
	} else if exists {
		data, err := store.Get(ctx, cacheRef)
		if err == nil {
			return data, nil
		}
		log.Error(err, "failed to read merged source cache; remerging", "ref", cacheRef)
	}

	sorted := make([]string, len(refs))
	copy(sorted, refs)
	sort.Strings(sorted)

	var sb strings.Builder
	for i, ref := range sorted {
		data, err := store.Get(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to read source %q: %w", ref, err)
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "===== %s =====\n", ref)
		sb.Write(data)
	}
	merged := []byte(sb.String())

	if err := store.Put(ctx, cacheRef, merged); err != nil {
		// The merge still succeeded; only the cache write is lost.
		log.Error(err, "failed to write merged source cache", "ref", cacheRef)
	}
	return merged, nil
}

func dedupe(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		r = strings.TrimSpace(r)
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
