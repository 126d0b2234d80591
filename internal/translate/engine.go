// Package translate drives single-file translation: prompt assembly,
// backend invocation, response parsing, and artifact persistence.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/autotrans/autotrans/internal/llm"
	"github.com/autotrans/autotrans/internal/memory"
	"github.com/autotrans/autotrans/internal/prompt"
)

// Config holds translation engine settings.
type Config struct {
	// CodeFenceLabel is the fenced-block label expected for code sections.
	CodeFenceLabel string
	// CodeExt, CommentExt, ReasoningExt are the sibling artifact extensions.
	CodeExt      string
	CommentExt   string
	ReasoningExt string
	// Echo receives streamed fragments as they arrive; nil discards them.
	Echo io.Writer
}

// Engine translates one file at a time against the generation backend.
// Its cache guarantees at most one backend call per distinct file content
// within the engine's lifetime (one run).
type Engine struct {
	generator llm.Generator
	memory    *memory.Manager
	assembler *prompt.Assembler
	cache     map[string]Sections
	cfg       Config
}

// NewEngine creates a translation engine.
func NewEngine(generator llm.Generator, mem *memory.Manager, assembler *prompt.Assembler, cfg Config) *Engine {
	if cfg.Echo == nil {
		cfg.Echo = io.Discard
	}
	return &Engine{
		generator: generator,
		memory:    mem,
		assembler: assembler,
		cache:     make(map[string]Sections),
		cfg:       cfg,
	}
}

// TranslateFile translates the file at path, writing the translated code,
// comments, and optional reasoning as sibling files. Any failure is
// converted to an error result for this file only; a batch run treats it as
// retryable and moves on.
func (e *Engine) TranslateFile(ctx context.Context, path string, streaming bool) (string, string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read source %s: %w", path, err)
	}

	hash := contentHash(source)
	if sections, ok := e.cache[hash]; ok {
		// Replay: same artifacts, no backend call.
		if err := e.writeArtifacts(path, sections); err != nil {
			return "", "", err
		}
		return sections.Code, sections.Comments, nil
	}

	promptText := e.assembler.Build(e.memory.Source, e.memory.Target, e.memory.History, string(source))

	var response string
	if streaming {
		response, err = e.generator.GenerateStream(ctx, promptText, func(fragment string) error {
			_, werr := io.WriteString(e.cfg.Echo, fragment)
			return werr
		})
		if err == nil {
			_, _ = io.WriteString(e.cfg.Echo, "\n")
		}
	} else {
		response, err = e.generator.Generate(ctx, promptText)
	}
	if err != nil {
		return "", "", fmt.Errorf("generate for %s: %w", path, err)
	}

	sections := ParseResponse(response, e.cfg.CodeFenceLabel)

	if err := e.writeArtifacts(path, sections); err != nil {
		return "", "", err
	}

	if err := e.memory.RecordTranslation(ctx, path, string(source)); err != nil {
		log.Printf("warning: could not update translation history for %s: %v", path, err)
	}

	e.cache[hash] = sections
	return sections.Code, sections.Comments, nil
}

// writeArtifacts writes the parsed sections as sibling files next to the
// input: same base name, distinct extensions. The reasoning artifact is
// written only when the response carried one.
func (e *Engine) writeArtifacts(path string, sections Sections) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))

	if err := writeFile(base+e.cfg.CodeExt, sections.Code); err != nil {
		return err
	}
	if err := writeFile(base+e.cfg.CommentExt, sections.Comments); err != nil {
		return err
	}
	if sections.HasReasoning {
		if err := writeFile(base+e.cfg.ReasoningExt, sections.Reasoning); err != nil {
			return err
		}
	}

	return nil
}

func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	return nil
}

// contentHash returns the hex SHA-256 digest of the file bytes. The digest
// keys the per-run translation cache, so it must be collision resistant.
func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
