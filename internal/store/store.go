// Package store implements the persisted embedding stores that make up the
// translation context memory.
//
// A store holds two index-aligned tables: code/context pairs with the code
// embeddings, and prose chunks with their embeddings. Stores are built once
// from a documentation corpus and then loaded verbatim from JSON; only the
// translation history (see History) grows afterwards.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/autotrans/autotrans/internal/embed"
	"github.com/autotrans/autotrans/internal/extract"
	"github.com/autotrans/autotrans/internal/segment"
)

// Sample is a code snippet with its surrounding documentation context.
// It serializes as a two-element JSON array to keep the persisted format
// stable: ["(code)", "context"].
type Sample struct {
	Code    string
	Context string
}

// MarshalJSON encodes the sample as ["code", "context"].
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{s.Code, s.Context})
}

// UnmarshalJSON decodes a ["code", "context"] array.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	s.Code = pair[0]
	s.Context = pair[1]
	return nil
}

// Store is an append-only collection of embedded documentation samples.
//
// Invariants: len(Samples) == len(Embeddings) and
// len(TextChunks) == len(TextEmbeddings) at every observation point; empty
// tables are zero-row slices, never nil; every vector is exactly dims wide.
type Store struct {
	dims int

	Samples        []Sample
	Embeddings     [][]float32
	TextChunks     []string
	TextEmbeddings [][]float32
}

// New creates an empty Store with the given vector width.
func New(dims int) *Store {
	s := &Store{dims: dims}
	s.Reset()
	return s
}

// Dims returns the vector width of the store.
func (s *Store) Dims() int {
	return s.dims
}

// Len returns the number of code/context pairs.
func (s *Store) Len() int {
	return len(s.Samples)
}

// Reset empties all tables, keeping them non-nil.
func (s *Store) Reset() {
	s.Samples = []Sample{}
	s.Embeddings = [][]float32{}
	s.TextChunks = []string{}
	s.TextEmbeddings = [][]float32{}
}

// FirstPairs returns up to n samples in store order.
func (s *Store) FirstPairs(n int) []Sample {
	if n > len(s.Samples) {
		n = len(s.Samples)
	}
	return s.Samples[:n]
}

// BuildResult reports what a rebuild produced. Per-item embedding failures
// are skipped and collected here rather than aborting the rebuild.
type BuildResult struct {
	Pairs   int
	Chunks  int
	Skipped int
	Errors  []error
}

// Rebuild resets the store and repopulates it from the documentation corpus
// at corpusPath (a single file or a directory tree). An empty corpus leaves
// the store empty; that is a degraded-input condition, not an error.
func (s *Store) Rebuild(ctx context.Context, provider embed.Provider, extractor *extract.Extractor, corpusPath string) *BuildResult {
	s.Reset()
	result := &BuildResult{}

	content := extractor.ExtractTree(corpusPath)
	if len(content) == 0 || allWhitespace(content) {
		log.Printf("warning: no content extracted from %s", corpusPath)
		return result
	}

	pairs := segment.ExtractPairs(content)
	chunks := segment.ExtractChunks(content)

	for _, pair := range pairs {
		codeVec, err := provider.Embed(ctx, pair.Code)
		if err != nil {
			log.Printf("warning: skipping sample: %v", err)
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("embed code %.40q: %w", pair.Code, err))
			continue
		}
		ctxVec, err := provider.Embed(ctx, pair.Context)
		if err != nil {
			log.Printf("warning: skipping sample: %v", err)
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("embed context %.40q: %w", pair.Context, err))
			continue
		}

		s.Samples = append(s.Samples, pair2Sample(pair))
		s.Embeddings = append(s.Embeddings, codeVec)
		s.TextChunks = append(s.TextChunks, pair.Context)
		s.TextEmbeddings = append(s.TextEmbeddings, ctxVec)
		result.Pairs++
	}

	for _, chunk := range chunks {
		vec, err := provider.Embed(ctx, chunk)
		if err != nil {
			log.Printf("warning: skipping text chunk: %v", err)
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Errorf("embed chunk %.40q: %w", chunk, err))
			continue
		}
		s.TextChunks = append(s.TextChunks, chunk)
		s.TextEmbeddings = append(s.TextEmbeddings, vec)
		result.Chunks++
	}

	return result
}

// storeJSON is the persisted representation of a Store.
type storeJSON struct {
	Embeddings     [][]float32 `json:"embeddings"`
	Samples        []Sample    `json:"samples"`
	TextEmbeddings [][]float32 `json:"text_embeddings"`
	TextChunks     []string    `json:"text_chunks"`
}

// Save serializes the store to path as JSON. Vectors serialize as nested
// numeric arrays; empty tables serialize as [] rather than null.
func (s *Store) Save(path string) error {
	data, err := json.Marshal(storeJSON{
		Embeddings:     s.Embeddings,
		Samples:        s.Samples,
		TextEmbeddings: s.TextEmbeddings,
		TextChunks:     s.TextChunks,
	})
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write store %s: %w", path, err)
	}

	return nil
}

// Load reads a store from path. Any parse or shape failure (missing fields,
// misaligned tables, wrong vector width) is a load failure that signals the
// caller to rebuild; it is never a crash.
func Load(path string, dims int) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}

	var raw storeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", path, err)
	}

	s := New(dims)
	s.Samples = nonNilSamples(raw.Samples)
	s.Embeddings = nonNilVectors(raw.Embeddings)
	s.TextChunks = nonNilStrings(raw.TextChunks)
	s.TextEmbeddings = nonNilVectors(raw.TextEmbeddings)

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}

	return s, nil
}

// Prepare loads the store from persistedPath if possible; otherwise it
// rebuilds from corpusPath and persists the result. Running Prepare twice
// with unchanged inputs yields an equal store.
func (s *Store) Prepare(ctx context.Context, provider embed.Provider, extractor *extract.Extractor, persistedPath, corpusPath string) error {
	if _, err := os.Stat(persistedPath); err == nil {
		loaded, loadErr := Load(persistedPath, s.dims)
		if loadErr == nil {
			*s = *loaded
			return nil
		}
		log.Printf("warning: could not load store from %s, rebuilding: %v", persistedPath, loadErr)
	}

	if _, err := os.Stat(corpusPath); err != nil {
		return fmt.Errorf("documentation corpus %s not found: %w", corpusPath, err)
	}

	s.Rebuild(ctx, provider, extractor, corpusPath)

	if err := s.Save(persistedPath); err != nil {
		log.Printf("warning: could not save store to %s: %v", persistedPath, err)
	}

	return nil
}

// validate checks the index-alignment and vector-width invariants.
func (s *Store) validate() error {
	if len(s.Samples) != len(s.Embeddings) {
		return fmt.Errorf("misaligned tables: %d samples, %d embeddings", len(s.Samples), len(s.Embeddings))
	}
	if len(s.TextChunks) != len(s.TextEmbeddings) {
		return fmt.Errorf("misaligned tables: %d text chunks, %d text embeddings", len(s.TextChunks), len(s.TextEmbeddings))
	}
	for i, vec := range s.Embeddings {
		if len(vec) != s.dims {
			return fmt.Errorf("embedding %d has width %d, want %d", i, len(vec), s.dims)
		}
	}
	for i, vec := range s.TextEmbeddings {
		if len(vec) != s.dims {
			return fmt.Errorf("text embedding %d has width %d, want %d", i, len(vec), s.dims)
		}
	}
	return nil
}

func pair2Sample(p segment.Pair) Sample {
	return Sample{Code: p.Code, Context: p.Context}
}

func nonNilVectors(v [][]float32) [][]float32 {
	if v == nil {
		return [][]float32{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilSamples(v []Sample) []Sample {
	if v == nil {
		return []Sample{}
	}
	return v
}

func allWhitespace(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
