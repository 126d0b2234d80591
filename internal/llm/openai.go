package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI generation backend.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	BaseURL     string
}

// OpenAIGenerator implements Generator using OpenAI chat completions.
type OpenAIGenerator struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIGenerator creates a new OpenAI generation backend.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}
}

// Generate submits the prompt and blocks for the complete response.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.config.Model,
		Temperature: float32(g.config.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", NewBackendError("openai", "generate", ErrContextCanceled)
		}
		return "", NewBackendError("openai", "generate", err)
	}

	if len(resp.Choices) == 0 {
		return "", NewBackendError("openai", "generate", fmt.Errorf("no choices returned"))
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream submits the prompt in streaming mode, invoking fn per delta.
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, prompt string, fn StreamFunc) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       g.config.Model,
		Temperature: float32(g.config.Temperature),
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", NewBackendError("openai", "generateStream", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), NewBackendError("openai", "generateStream", err)
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		fragment := chunk.Choices[0].Delta.Content
		if fragment == "" {
			continue
		}

		full.WriteString(fragment)
		if fn != nil {
			if err := fn(fragment); err != nil {
				return full.String(), NewBackendError("openai", "generateStream", err)
			}
		}
	}

	return full.String(), nil
}

// Model returns the generation model identifier.
func (g *OpenAIGenerator) Model() string {
	return g.config.Model
}

// Ping checks the API key is present; a full round trip is left to the
// first generation call to avoid burning tokens on startup.
func (g *OpenAIGenerator) Ping(ctx context.Context) error {
	if g.config.APIKey == "" {
		return NewBackendError("openai", "ping", fmt.Errorf("missing API key"))
	}
	return nil
}
