package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/autotrans/autotrans/internal/embed"
	"github.com/autotrans/autotrans/internal/segment"
)

// History is the translation-history store: one normalized source snippet
// per successfully translated file, with an index-aligned file path table.
// Unlike the reference stores it grows during a run, one append at a time.
type History struct {
	dims int

	Samples    []string
	Embeddings [][]float32
	Filepaths  []string
}

// NewHistory creates an empty History with the given vector width.
func NewHistory(dims int) *History {
	h := &History{dims: dims}
	h.Samples = []string{}
	h.Embeddings = [][]float32{}
	h.Filepaths = []string{}
	return h
}

// Len returns the number of recorded translations.
func (h *History) Len() int {
	return len(h.Samples)
}

// Last returns up to n snippets in store order, most recent last.
func (h *History) Last(n int) []string {
	if n > len(h.Samples) {
		n = len(h.Samples)
	}
	return h.Samples[len(h.Samples)-n:]
}

// Append normalizes source, embeds it, and records it together with the
// translated file's path. The caller persists after every successful append.
func (h *History) Append(ctx context.Context, provider embed.Provider, filePath, source string) error {
	normalized := segment.Normalize(source)
	if normalized == "" {
		// A file of nothing but comments still counts as translated; keep
		// the tables aligned with a placeholder snippet.
		normalized = " "
	}

	vec, err := provider.Embed(ctx, normalized)
	if err != nil {
		return fmt.Errorf("embed history snippet for %s: %w", filePath, err)
	}

	h.Samples = append(h.Samples, normalized)
	h.Embeddings = append(h.Embeddings, vec)
	h.Filepaths = append(h.Filepaths, filePath)
	return nil
}

// historyJSON is the persisted representation of a History.
type historyJSON struct {
	Embeddings [][]float32 `json:"embeddings"`
	Samples    []string    `json:"samples"`
	Filepaths  []string    `json:"filepaths"`
}

// Save serializes the history to path as JSON.
func (h *History) Save(path string) error {
	data, err := json.Marshal(historyJSON{
		Embeddings: h.Embeddings,
		Samples:    h.Samples,
		Filepaths:  h.Filepaths,
	})
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write history %s: %w", path, err)
	}

	return nil
}

// LoadHistory reads a history store from path. Shape failures are load
// failures, signaling the caller to start with an empty history.
func LoadHistory(path string, dims int) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}

	var raw historyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}

	h := NewHistory(dims)
	h.Samples = nonNilStrings(raw.Samples)
	h.Embeddings = nonNilVectors(raw.Embeddings)
	h.Filepaths = nonNilStrings(raw.Filepaths)

	if len(h.Samples) != len(h.Embeddings) || len(h.Samples) != len(h.Filepaths) {
		return nil, fmt.Errorf("history %s: misaligned tables: %d samples, %d embeddings, %d filepaths",
			path, len(h.Samples), len(h.Embeddings), len(h.Filepaths))
	}
	for i, vec := range h.Embeddings {
		if len(vec) != dims {
			return nil, fmt.Errorf("history %s: embedding %d has width %d, want %d", path, i, len(vec), dims)
		}
	}

	return h, nil
}
