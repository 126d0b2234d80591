// Package run discovers candidate files and drives resumable batch
// translation runs over them.
package run

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/autotrans/autotrans/internal/translate"
)

// Config holds batch-run settings.
type Config struct {
	// InputRoot is the directory scanned for candidate files.
	InputRoot string
	// Patterns is the glob suffix family matched against file base names.
	Patterns []string
	// IgnorePatterns are gitignore-style patterns excluded from discovery,
	// in addition to the input root's own .gitignore if present.
	IgnorePatterns []string
	// PathlistFile records every discovered file, overwritten each run.
	PathlistFile string
	// LedgerFile is the append-only processed-files ledger.
	LedgerFile string
	// Stream echoes generation output as it arrives.
	Stream bool
}

// RunResult summarizes one batch run. Per-file failures are collected, not
// fatal: a failed file stays off the ledger and is retried next run.
type RunResult struct {
	Discovered int
	Skipped    int
	Translated int
	Failed     int
	Errors     []error
	Duration   time.Duration
}

// ProgressCallback is invoked before each file is translated.
type ProgressCallback func(path string, done, total int)

// Orchestrator walks the input root, maintains the processed-file ledger,
// and invokes the translation engine once per unprocessed file, strictly
// sequentially: a file's ledger append is flushed before the next begins.
type Orchestrator struct {
	engine   *translate.Engine
	cfg      Config
	progress ProgressCallback
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(engine *translate.Engine, cfg Config) *Orchestrator {
	return &Orchestrator{
		engine: engine,
		cfg:    cfg,
	}
}

// SetProgressCallback sets a callback for per-file progress reporting.
func (o *Orchestrator) SetProgressCallback(cb ProgressCallback) {
	o.progress = cb
}

// Discover recursively collects candidate files under the input root in
// walk order, honoring the root's .gitignore and the configured ignore
// patterns.
func (o *Orchestrator) Discover(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(o.cfg.InputRoot); err != nil {
		return nil, fmt.Errorf("input root %s: %w", o.cfg.InputRoot, err)
	}

	matcher := o.buildIgnoreMatcher()

	var files []string
	err := filepath.WalkDir(o.cfg.InputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("warning: skipping %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(o.cfg.InputRoot, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if matcher != nil && rel != "." && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if !matchesAny(d.Name(), o.cfg.Patterns) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	return files, nil
}

// Run executes one batch: discover, record the pathlist, then translate
// every file not yet in the ledger. The process attempts every candidate;
// individual failures never abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	files, err := o.Discover(ctx)
	if err != nil {
		return nil, err
	}

	if err := o.writePathlist(files); err != nil {
		log.Printf("warning: could not write pathlist: %v", err)
	}

	processed, err := loadLedger(o.cfg.LedgerFile)
	if err != nil {
		return nil, err
	}

	ledger, err := os.OpenFile(o.cfg.LedgerFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", o.cfg.LedgerFile, err)
	}
	defer ledger.Close()

	result := &RunResult{Discovered: len(files)}

	for i, path := range files {
		if ctx.Err() != nil {
			result.Duration = time.Since(start)
			return result, ctx.Err()
		}

		if processed[path] {
			result.Skipped++
			continue
		}

		if o.progress != nil {
			o.progress(path, i+1, len(files))
		}

		_, _, terr := o.engine.TranslateFile(ctx, path, o.cfg.Stream)
		if terr != nil {
			// Left off the ledger: a future run retries this file.
			log.Printf("failed to translate %s: %v", path, terr)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", path, terr))
			continue
		}

		if err := appendLedger(ledger, path); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		processed[path] = true
		result.Translated++
	}

	result.Duration = time.Since(start)
	return result, nil
}

// buildIgnoreMatcher combines the input root's .gitignore with the
// configured ignore patterns.
func (o *Orchestrator) buildIgnoreMatcher() *gitignore.GitIgnore {
	lines := append([]string{}, o.cfg.IgnorePatterns...)

	gitignorePath := filepath.Join(o.cfg.InputRoot, ".gitignore")
	if data, err := os.ReadFile(gitignorePath); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				lines = append(lines, line)
			}
		}
	}

	if len(lines) == 0 {
		return nil
	}
	return gitignore.CompileIgnoreLines(lines...)
}

// writePathlist overwrites the pathlist file with every discovered path,
// one per line. The listing is informational; resumability comes from the
// ledger alone.
func (o *Orchestrator) writePathlist(files []string) error {
	var sb strings.Builder
	for _, f := range files {
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	return os.WriteFile(o.cfg.PathlistFile, []byte(sb.String()), 0644)
}

// loadLedger reads the processed-files ledger into a set. A missing ledger
// is an empty set.
func loadLedger(path string) (map[string]bool, error) {
	processed := make(map[string]bool)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return processed, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			processed[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	return processed, nil
}

// appendLedger writes one path and syncs so the entry survives a crash
// before the next file starts.
func appendLedger(f *os.File, path string) error {
	if _, err := f.WriteString(path + "\n"); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

// matchesAny reports whether name matches any of the glob patterns.
func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
