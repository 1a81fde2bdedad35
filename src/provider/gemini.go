package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"quizforge/src/log"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"

	geminiTransientRetries = 2
	geminiMalformedRetries = 1
	geminiRetryDelay       = 2 * time.Second
)

// GeminiConfig configures the Gemini REST client. APIKeys is a pool of
// equivalent credentials; the client rotates through them on quota and
// authorization failures.
type GeminiConfig struct {
	BaseURL string
	Model   string
	APIKeys []string
	Client  *http.Client
}

// Gemini calls the generateContent REST endpoint and parses the bulk text
// response into items.
type Gemini struct {
	baseURL    string
	model      string
	client     *http.Client
	logger     logr.Logger
	retryDelay time.Duration

	mu   sync.Mutex
	keys []string
	next int
}

func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("gemini: at least one api key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	return &Gemini{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		client:     client,
		keys:       keys,
		logger:     log.WithName("gemini"),
		retryDelay: geminiRetryDelay,
	}, nil
}

func (g *Gemini) Name() string {
	return "gemini"
}

// Generate calls the model and parses the response. The active key is
// sticky: it stays selected across calls until it hits a quota or
// authorization failure, then the pool rotates. Transient failures get a
// bounded retry, an unparseable response one regeneration attempt.
func (g *Gemini) Generate(ctx context.Context, prompt string, itemCount int) ([]Item, error) {
	transientLeft := geminiTransientRetries
	malformedLeft := geminiMalformedRetries
	keysLeft := len(g.keys)

	for {
		text, err := g.call(ctx, g.currentKey(), prompt)
		if err != nil {
			switch KindOf(err) {
			case KindQuota, KindAuthorization:
				keysLeft--
				if keysLeft <= 0 {
					return nil, err
				}
				g.rotate()
				g.logger.Info("rotated api key", "reason", KindOf(err), "keys_left", keysLeft)
				continue
			case KindTransient:
				if transientLeft <= 0 {
					return nil, err
				}
				transientLeft--
				if serr := sleepCtx(ctx, g.retryDelay); serr != nil {
					return nil, err
				}
				continue
			default:
				return nil, err
			}
		}

		items := ParseItems(text)
		if len(items) == 0 {
			merr := &Error{
				Kind:     KindMalformed,
				Provider: g.Name(),
				Err:      errors.New("no parseable question blocks in response"),
			}
			if malformedLeft <= 0 {
				return nil, merr
			}
			malformedLeft--
			g.logger.Info("response had no parseable blocks; regenerating once")
			continue
		}
		if len(items) > itemCount {
			items = items[:itemCount]
		}
		return items, nil
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) call(ctx context.Context, key, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, key)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classifyTransport(g.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(g.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(g.Name(), resp.StatusCode, string(respBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &Error{Kind: KindMalformed, Provider: g.Name(), Err: fmt.Errorf("error decoding response: %w", err)}
	}
	if len(parsed.Candidates) == 0 {
		return "", &Error{Kind: KindMalformed, Provider: g.Name(), Err: errors.New("response has no candidates")}
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func (g *Gemini) currentKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys[g.next]
}

func (g *Gemini) rotate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = (g.next + 1) % len(g.keys)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
