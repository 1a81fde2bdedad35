package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"quizforge/src/log"
)

const DefaultOllamaBaseURL = "http://localhost:11434/api"

// OllamaConfig configures the local Ollama client.
type OllamaConfig struct {
	BaseURL string
	Model   string
	System  string
	Client  *http.Client
}

// Ollama streams /api/generate NDJSON responses and parses the assembled
// text into items. Local models need no credential handling, so quota and
// authorization kinds never occur here.
type Ollama struct {
	baseURL string
	model   string
	system  string
	client  *http.Client
	logger  logr.Logger
}

func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama: model is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 300 * time.Second}
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.Model,
		system:  cfg.System,
		client:  client,
		logger:  log.WithName("ollama"),
	}, nil
}

func (o *Ollama) Name() string {
	return "ollama"
}

func (o *Ollama) Generate(ctx context.Context, prompt string, itemCount int) ([]Item, error) {
	malformedLeft := 1
	for {
		text, err := o.call(ctx, prompt)
		if err != nil {
			return nil, err
		}

		items := ParseItems(text)
		if len(items) == 0 {
			merr := &Error{
				Kind:     KindMalformed,
				Provider: o.Name(),
				Err:      errors.New("no parseable question blocks in response"),
			}
			if malformedLeft <= 0 {
				return nil, merr
			}
			malformedLeft--
			o.logger.Info("response had no parseable blocks; regenerating once")
			continue
		}
		if len(items) > itemCount {
			items = items[:itemCount]
		}
		return items, nil
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *Ollama) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  o.model,
		System: o.system,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/generate", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", classifyTransport(o.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(o.Name(), resp.StatusCode, string(respBody))
	}

	reader := bufio.NewReader(resp.Body)
	var full strings.Builder
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var chunk ollamaGenerateResponse
			if jerr := json.Unmarshal(bytes.TrimSpace(line), &chunk); jerr == nil {
				full.WriteString(chunk.Response)
				if chunk.Done {
					return full.String(), nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return full.String(), nil
			}
			return "", classifyTransport(o.Name(), err)
		}
	}
}
