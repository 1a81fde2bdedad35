package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const validBulkBlock = "Question 1: Heart valves\nWhich valve is bicuspid?\nA) Tricuspid\nB) Mitral\nAnswer: B\nExplanation: The mitral valve has two cusps.\n"

func geminiTextResponse(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

// recordingHandler captures the api keys used per request and plays back
// scripted responses in order, repeating the last one.
type recordingHandler struct {
	mu        sync.Mutex
	keys      []string
	responses []func(w http.ResponseWriter)
	calls     int
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.keys = append(h.keys, r.URL.Query().Get("key"))
	idx := h.calls
	h.calls++
	h.mu.Unlock()

	if idx >= len(h.responses) {
		idx = len(h.responses) - 1
	}
	h.responses[idx](w)
}

func ok(text string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		fmt.Fprint(w, geminiTextResponse(text))
	}
}

func status(code int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}
}

func newTestGemini(t *testing.T, h http.Handler, keys ...string) (*Gemini, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	g, err := NewGemini(GeminiConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		APIKeys: keys,
		Client:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	g.retryDelay = time.Millisecond
	return g, srv
}

func TestGeminiGenerateParsesItems(t *testing.T) {
	handler := &recordingHandler{responses: []func(http.ResponseWriter){ok(validBulkBlock)}}
	g, _ := newTestGemini(t, handler, "k1")

	items, err := g.Generate(context.Background(), "prompt", 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].Title != "Heart valves" || items[0].CorrectIndex != 1 {
		t.Errorf("item = %+v", items[0])
	}
}

func TestGeminiRotatesKeyOnQuota(t *testing.T) {
	handler := &recordingHandler{responses: []func(http.ResponseWriter){
		status(429, `{"error": {"message": "quota exceeded"}}`),
		ok(validBulkBlock),
	}}
	g, _ := newTestGemini(t, handler, "k1", "k2")

	items, err := g.Generate(context.Background(), "prompt", 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.keys) != 2 || handler.keys[0] != "k1" || handler.keys[1] != "k2" {
		t.Errorf("keys used = %v, want [k1 k2]", handler.keys)
	}
}

func TestGeminiExhaustedKeysReturnQuota(t *testing.T) {
	handler := &recordingHandler{responses: []func(http.ResponseWriter){
		status(429, "quota exceeded"),
	}}
	g, _ := newTestGemini(t, handler, "k1", "k2")

	_, err := g.Generate(context.Background(), "prompt", 5)
	if err == nil {
		t.Fatal("expected error after exhausting all keys")
	}
	if KindOf(err) != KindQuota {
		t.Errorf("error kind = %q, want quota", KindOf(err))
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.calls != 2 {
		t.Errorf("calls = %d, want one per key", handler.calls)
	}
}

func TestGeminiRetriesTransient(t *testing.T) {
	handler := &recordingHandler{responses: []func(http.ResponseWriter){
		status(503, "overloaded"),
		ok(validBulkBlock),
	}}
	g, _ := newTestGemini(t, handler, "k1")

	items, err := g.Generate(context.Background(), "prompt", 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestGeminiAuthorizationError(t *testing.T) {
	handler := &recordingHandler{responses: []func(http.ResponseWriter){
		status(403, "api key not valid"),
	}}
	g, _ := newTestGemini(t, handler, "k1")

	_, err := g.Generate(context.Background(), "prompt", 5)
	if KindOf(err) != KindAuthorization {
		t.Errorf("error kind = %q, want authorization", KindOf(err))
	}
}

func TestGeminiRegeneratesOnceOnMalformed(t *testing.T) {
	handler := &recordingHandler{responses: []func(http.ResponseWriter){
		ok("I cannot answer in that format."),
		ok(validBulkBlock),
	}}
	g, _ := newTestGemini(t, handler, "k1")

	items, err := g.Generate(context.Background(), "prompt", 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.calls != 2 {
		t.Errorf("calls = %d, want 2", handler.calls)
	}
}

func TestGeminiMalformedTwiceFails(t *testing.T) {
	handler := &recordingHandler{responses: []func(http.ResponseWriter){
		ok("still not the format"),
	}}
	g, _ := newTestGemini(t, handler, "k1")

	_, err := g.Generate(context.Background(), "prompt", 5)
	if KindOf(err) != KindMalformed {
		t.Errorf("error kind = %q, want malformed", KindOf(err))
	}
}

func TestGeminiTruncatesToRequestedCount(t *testing.T) {
	two := validBulkBlock +
		"Question 2: Extra\nBody?\nA) x\nB) y\nAnswer: A\n"
	handler := &recordingHandler{responses: []func(http.ResponseWriter){ok(two)}}
	g, _ := newTestGemini(t, handler, "k1")

	items, err := g.Generate(context.Background(), "prompt", 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("items = %d, want truncation to 1", len(items))
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(GeminiConfig{APIKeys: []string{" ", ""}}); err == nil {
		t.Error("expected error for empty key pool")
	}
}

func TestRegistrySelectsByName(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Gemini", func() (Gateway, error) {
		return &Gemini{}, nil
	})

	if _, err := reg.Get("gemini"); err != nil {
		t.Errorf("Get(gemini): %v", err)
	}
	if _, err := reg.Get("missing"); err == nil {
		t.Error("Get(missing) should fail")
	}
}
