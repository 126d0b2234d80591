package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "deepseek-r1:70b"
	defaultTemperature = 0.1
	defaultContextLen  = 4096
)

// OllamaConfig holds configuration for the Ollama generation backend.
// A zero Timeout means no client-side deadline: generation calls run until
// the backend finishes or fails, per the orchestrator's timeout policy.
type OllamaConfig struct {
	URL           string
	Model         string
	Temperature   float64
	ContextWindow int
	Timeout       time.Duration
}

// OllamaGenerator implements Generator against Ollama's /api/generate.
type OllamaGenerator struct {
	config OllamaConfig
	client *http.Client
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Options ollamaOptions `json:"options"`
	Stream  bool          `json:"stream"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// NewOllamaGenerator creates a new Ollama generation backend.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.URL == "" {
		cfg.URL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = defaultContextLen
	}

	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &OllamaGenerator{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Generate submits the prompt and blocks for the complete response.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := g.post(ctx, prompt, false)
	if err != nil {
		return "", NewBackendError("ollama", "generate", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewBackendError("ollama", "generate", fmt.Errorf("read response: %w", err))
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", NewBackendError("ollama", "generate", fmt.Errorf("unmarshal response: %w", err))
	}

	return genResp.Response, nil
}

// GenerateStream submits the prompt with streaming enabled, consuming NDJSON
// fragments one line at a time in arrival order.
func (g *OllamaGenerator) GenerateStream(ctx context.Context, prompt string, fn StreamFunc) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := g.post(ctx, prompt, true)
	if err != nil {
		return "", NewBackendError("ollama", "generateStream", err)
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return full.String(), NewBackendError("ollama", "generateStream", fmt.Errorf("unmarshal fragment: %w", err))
		}

		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if fn != nil {
				if err := fn(chunk.Response); err != nil {
					return full.String(), NewBackendError("ollama", "generateStream", err)
				}
			}
		}

		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return full.String(), NewBackendError("ollama", "generateStream", fmt.Errorf("read stream: %w", err))
	}

	return full.String(), nil
}

// post issues the generate request and returns the raw response after status
// checking; the caller owns the body.
func (g *OllamaGenerator) post(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	reqBody := ollamaGenerateRequest{
		Model:  g.config.Model,
		Prompt: prompt,
		Options: ollamaOptions{
			Temperature: g.config.Temperature,
			NumCtx:      g.config.ContextWindow,
		},
		Stream: stream,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.config.URL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrContextCanceled
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var errResp ollamaErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			if strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				return nil, ErrModelNotFound
			}
			return nil, fmt.Errorf("ollama error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// Model returns the generation model identifier.
func (g *OllamaGenerator) Model() string {
	return g.config.Model
}

// Ping checks if Ollama is running and the model exists.
func (g *OllamaGenerator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", g.config.URL+"/api/tags", nil)
	if err != nil {
		return NewBackendError("ollama", "ping", fmt.Errorf("create request: %w", err))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return NewBackendError("ollama", "ping", ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewBackendError("ollama", "ping", fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	showReq, err := http.NewRequestWithContext(ctx, "POST", g.config.URL+"/api/show",
		strings.NewReader(fmt.Sprintf(`{"name":%q}`, g.config.Model)))
	if err != nil {
		return NewBackendError("ollama", "ping", fmt.Errorf("create show request: %w", err))
	}
	showReq.Header.Set("Content-Type", "application/json")

	showResp, err := g.client.Do(showReq)
	if err != nil {
		return NewBackendError("ollama", "ping", fmt.Errorf("model check failed: %w", err))
	}
	defer showResp.Body.Close()

	if showResp.StatusCode == http.StatusNotFound {
		return NewBackendError("ollama", "ping", ErrModelNotFound)
	}
	if showResp.StatusCode != http.StatusOK {
		return NewBackendError("ollama", "ping", fmt.Errorf("model check status: %d", showResp.StatusCode))
	}

	return nil
}
