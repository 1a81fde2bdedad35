package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a provider failure. The orchestrator branches on kind,
// never on provider-specific status codes or messages.
type Kind string

const (
	KindQuota         Kind = "quota"
	KindTransient     Kind = "transient"
	KindMalformed     Kind = "malformed"
	KindAuthorization Kind = "authorization"
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from err, or "" when err is not a
// provider error.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// Item is the canonical parsed generation result. Items that fail
// structural validation never leave the gateway.
type Item struct {
	Title        string
	Question     string
	Options      []string
	CorrectIndex int
	Explanation  string
}

// Gateway produces structured items from a prompt. Implementations own
// credential rotation and retry; callers only see items or a classified
// *Error.
type Gateway interface {
	Name() string
	Generate(ctx context.Context, prompt string, itemCount int) ([]Item, error)
}

// classifyStatus maps an HTTP failure to an error kind. Quota detection
// also checks the body because some providers return quota exhaustion as a
// generic 400 with explanatory text.
func classifyStatus(name string, status int, body string) *Error {
	kind := KindTransient
	lower := strings.ToLower(body)
	switch {
	case status == 429 || strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit"):
		kind = KindQuota
	case status == 401 || status == 403:
		kind = KindAuthorization
	case status >= 500:
		kind = KindTransient
	default:
		kind = KindMalformed
	}
	return &Error{
		Kind:     kind,
		Provider: name,
		Err:      fmt.Errorf("unexpected status %d: %s", status, truncateBody(body)),
	}
}

// classifyTransport maps a request-level failure (refused, reset, timeout,
// canceled context) to an error kind. Transport problems are always
// transient; the original cause stays reachable through Unwrap.
func classifyTransport(name string, err error) *Error {
	return &Error{Kind: KindTransient, Provider: name, Err: err}
}

func truncateBody(body string) string {
	const maxLen = 300
	body = strings.TrimSpace(body)
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen]
}
