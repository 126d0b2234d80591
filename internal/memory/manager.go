// Package memory owns the three context-memory stores and their lifecycle.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/autotrans/autotrans/internal/embed"
	"github.com/autotrans/autotrans/internal/extract"
	"github.com/autotrans/autotrans/internal/store"
)

// Config holds the documentation corpus paths and persisted store paths.
type Config struct {
	SourceDocsPath string
	TargetDocsPath string

	SourceStorePath  string
	TargetStorePath  string
	HistoryStorePath string

	Dimensions int
}

// Manager owns the source-reference, target-reference, and
// translation-history stores for the lifetime of one run. It is constructed
// once and passed by reference; concurrent runs against the same persisted
// paths are unsupported.
type Manager struct {
	cfg       Config
	provider  embed.Provider
	extractor *extract.Extractor

	Source  *store.Store
	Target  *store.Store
	History *store.History
}

// NewManager creates a Manager with empty stores.
func NewManager(cfg Config, provider embed.Provider, extractor *extract.Extractor) *Manager {
	return &Manager{
		cfg:       cfg,
		provider:  provider,
		extractor: extractor,
		Source:    store.New(cfg.Dimensions),
		Target:    store.New(cfg.Dimensions),
		History:   store.NewHistory(cfg.Dimensions),
	}
}

// Prepare loads or builds the reference stores and loads the history store
// if present. A reference store that must be rebuilt from a missing corpus
// is a fatal startup condition; a missing or unloadable history store just
// starts empty.
func (m *Manager) Prepare(ctx context.Context) error {
	if err := m.Source.Prepare(ctx, m.provider, m.extractor, m.cfg.SourceStorePath, m.cfg.SourceDocsPath); err != nil {
		return fmt.Errorf("prepare source store: %w", err)
	}
	if err := m.Target.Prepare(ctx, m.provider, m.extractor, m.cfg.TargetStorePath, m.cfg.TargetDocsPath); err != nil {
		return fmt.Errorf("prepare target store: %w", err)
	}

	if _, err := os.Stat(m.cfg.HistoryStorePath); err == nil {
		hist, loadErr := store.LoadHistory(m.cfg.HistoryStorePath, m.cfg.Dimensions)
		if loadErr != nil {
			log.Printf("warning: could not load history store, starting empty: %v", loadErr)
		} else {
			m.History = hist
		}
	}

	return nil
}

// RecordTranslation appends the normalized source of a successfully
// translated file to the history store and persists it immediately. A save
// failure is logged and does not roll back the in-memory append.
func (m *Manager) RecordTranslation(ctx context.Context, filePath, source string) error {
	if err := m.History.Append(ctx, m.provider, filePath, source); err != nil {
		return err
	}

	if err := m.History.Save(m.cfg.HistoryStorePath); err != nil {
		log.Printf("warning: could not save history store: %v", err)
	}

	return nil
}

// Status summarizes store sizes for operator output.
func (m *Manager) Status() string {
	return fmt.Sprintf("source: %d pairs, %d text chunks; target: %d pairs, %d text chunks; history: %d translations",
		m.Source.Len(), len(m.Source.TextChunks),
		m.Target.Len(), len(m.Target.TextChunks),
		m.History.Len())
}
