package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/autotrans/autotrans/internal/config"
	"github.com/autotrans/autotrans/internal/embed"
	"github.com/autotrans/autotrans/internal/extract"
	"github.com/autotrans/autotrans/internal/llm"
	"github.com/autotrans/autotrans/internal/memory"
	"github.com/autotrans/autotrans/internal/prompt"
	"github.com/autotrans/autotrans/internal/run"
	"github.com/autotrans/autotrans/internal/store"
	"github.com/autotrans/autotrans/internal/translate"
	"github.com/autotrans/autotrans/internal/version"
)

func main() {
	// API keys commonly live in a .env next to the corpus.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "autotrans",
	Short:   "Context-memory driven batch code translation",
	Version: version.Full(),
	Long: `autotrans builds a reusable context memory from source- and
target-language reference documentation and uses it to drive batch code
translation against a local or remote LLM backend.

Runs are resumable: successfully translated files are recorded in an
append-only ledger and skipped on the next run.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("autotrans %s\n", version.Version)
		fmt.Printf("  commit:  %s\n", version.Commit)
		fmt.Printf("  built:   %s\n", version.Date)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default autotrans.yaml in the current directory",
	RunE:  runInit,
}

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Build or load the context-memory stores without translating",
	Long: `Build the source and target context stores from the reference
documentation, or load them if already persisted. Useful to front-load the
embedding work before a long translation run.`,
	RunE: runPrepare,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Translate every unprocessed file under the input root",
	Long: `Discover candidate files under the input root, skip those already
recorded in the processed-files ledger, and translate the rest one at a
time. A file's failure is logged and retried on the next run; it never
aborts the batch.`,
	RunE: runRun,
}

var translateCmd = &cobra.Command{
	Use:   "translate <file>",
	Short: "Translate a single file, bypassing the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranslate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store sizes and batch progress",
	RunE:  runStatus,
}

func init() {
	rootCmd.SetVersionTemplate("autotrans version {{.Version}}\n")

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	for _, cmd := range []*cobra.Command{prepareCmd, runCmd, translateCmd, statusCmd} {
		cmd.Flags().StringP("src-docs", "s", "", "source language docs (file or directory of TXT, HTML, PDF)")
		cmd.Flags().StringP("trg-docs", "t", "", "target language docs (file or directory of TXT, HTML, PDF)")
		cmd.Flags().StringP("model", "m", "", "generation model identifier")
		cmd.Flags().String("src-store", "", "path of the source context store (JSON)")
		cmd.Flags().String("trg-store", "", "path of the target context store (JSON)")
		cmd.Flags().String("history-store", "", "path of the translation-history store (JSON)")
	}

	runCmd.Flags().StringP("input", "i", "", "directory of files to translate")
	runCmd.Flags().Bool("stream", false, "echo LLM output to stdout as it is generated")
	runCmd.Flags().Bool("watch", false, "keep running and translate new files as they appear")

	translateCmd.Flags().Bool("stream", false, "echo LLM output to stdout as it is generated")

	statusCmd.Flags().StringP("input", "i", "", "directory of files to translate")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := rootCmd.PersistentFlags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("src-docs"); v != "" {
		cfg.SourceDocsPath = v
	}
	if v, _ := cmd.Flags().GetString("trg-docs"); v != "" {
		cfg.TargetDocsPath = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Generation.Model = v
	}
	if v, _ := cmd.Flags().GetString("src-store"); v != "" {
		cfg.Stores.SourcePath = v
	}
	if v, _ := cmd.Flags().GetString("trg-store"); v != "" {
		cfg.Stores.TargetPath = v
	}
	if v, _ := cmd.Flags().GetString("history-store"); v != "" {
		cfg.Stores.HistoryPath = v
	}
	if cmd.Flags().Lookup("input") != nil {
		if v, _ := cmd.Flags().GetString("input"); v != "" {
			cfg.InputRoot = v
		}
	}
	if cmd.Flags().Lookup("stream") != nil {
		if v, _ := cmd.Flags().GetBool("stream"); v {
			cfg.Run.Stream = true
		}
	}

	return cfg, nil
}

// session bundles the per-run object graph: one memory manager, one engine,
// one orchestrator, constructed once and shared by reference.
type session struct {
	cfg      *config.Config
	provider embed.Provider
	memory   *memory.Manager
	engine   *translate.Engine
}

// newSession wires the providers, stores, and engine from config.
func newSession(cfg *config.Config) (*session, error) {
	provider, err := createProvider(cfg)
	if err != nil {
		return nil, err
	}
	provider = embed.WithCache(provider, cfg.Embedding.CacheSize)

	generator, err := createGenerator(cfg)
	if err != nil {
		return nil, err
	}

	extractor := extract.NewExtractor()

	mem := memory.NewManager(memory.Config{
		SourceDocsPath:   cfg.SourceDocsPath,
		TargetDocsPath:   cfg.TargetDocsPath,
		SourceStorePath:  cfg.Stores.SourcePath,
		TargetStorePath:  cfg.Stores.TargetPath,
		HistoryStorePath: cfg.Stores.HistoryPath,
		Dimensions:       cfg.Embedding.Dimensions,
	}, provider, extractor)

	assembler := prompt.NewAssembler(
		cfg.Translation.SourceLanguage,
		cfg.Translation.TargetLanguage,
		cfg.Translation.CodeFenceLabel,
	)

	engine := translate.NewEngine(generator, mem, assembler, translate.Config{
		CodeFenceLabel: cfg.Translation.CodeFenceLabel,
		CodeExt:        cfg.Translation.CodeExt,
		CommentExt:     cfg.Translation.CommentExt,
		ReasoningExt:   cfg.Translation.ReasoningExt,
		Echo:           os.Stdout,
	})

	return &session{
		cfg:      cfg,
		provider: provider,
		memory:   mem,
		engine:   engine,
	}, nil
}

// createProvider creates an embedding provider based on config.
func createProvider(cfg *config.Config) (embed.Provider, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embed.NewOpenAIProvider(embed.OpenAIConfig{
			APIKey:     cfg.Embedding.OpenAIAPIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	case "ollama", "":
		return embed.NewOllamaProvider(embed.OllamaConfig{
			URL:        cfg.Embedding.OllamaURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
}

// createGenerator creates a generation backend based on config.
func createGenerator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.Generation.Provider {
	case "openai":
		return llm.NewOpenAIGenerator(llm.OpenAIConfig{
			APIKey:      cfg.Generation.OpenAIAPIKey,
			Model:       cfg.Generation.Model,
			Temperature: cfg.Generation.Temperature,
		}), nil
	case "ollama", "":
		return llm.NewOllamaGenerator(llm.OllamaConfig{
			URL:           cfg.Generation.OllamaURL,
			Model:         cfg.Generation.Model,
			Temperature:   cfg.Generation.Temperature,
			ContextWindow: cfg.Generation.ContextWindow,
		}), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Generation.Provider)
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	return ctx, cancel
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "autotrans.yaml"
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runPrepare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := sess.provider.Ping(ctx); err != nil {
		return fmt.Errorf("embedding provider unavailable: %w", err)
	}

	fmt.Printf("Preparing context stores...\n")
	fmt.Printf("  Source docs: %s\n", cfg.SourceDocsPath)
	fmt.Printf("  Target docs: %s\n", cfg.TargetDocsPath)

	if err := sess.memory.Prepare(ctx); err != nil {
		return err
	}

	fmt.Printf("\nContext store status:\n  %s\n", sess.memory.Status())
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := sess.provider.Ping(ctx); err != nil {
		return fmt.Errorf("embedding provider unavailable: %w", err)
	}

	if err := sess.memory.Prepare(ctx); err != nil {
		return err
	}
	fmt.Printf("Context stores ready: %s\n", sess.memory.Status())

	orch := run.NewOrchestrator(sess.engine, run.Config{
		InputRoot:      cfg.InputRoot,
		Patterns:       cfg.Run.Patterns,
		IgnorePatterns: cfg.Run.IgnorePatterns,
		PathlistFile:   cfg.Run.PathlistFile,
		LedgerFile:     cfg.Run.LedgerFile,
		Stream:         cfg.Run.Stream,
	})
	orch.SetProgressCallback(func(path string, done, total int) {
		fmt.Printf("\nTranslating (%d/%d): %s\n", done, total, path)
	})

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		fmt.Printf("Watching %s for new files...\n", cfg.InputRoot)
		return orch.Watch(ctx)
	}

	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun complete:\n")
	fmt.Printf("  Discovered: %d\n", result.Discovered)
	fmt.Printf("  Already processed: %d\n", result.Skipped)
	fmt.Printf("  Translated: %d\n", result.Translated)
	fmt.Printf("  Failed (will retry next run): %d\n", result.Failed)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond*100))

	for _, e := range result.Errors {
		fmt.Printf("  - %v\n", e)
	}

	// A single file's failure does not change the exit status.
	return nil
}

func runTranslate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := sess.memory.Prepare(ctx); err != nil {
		return err
	}

	stream, _ := cmd.Flags().GetBool("stream")
	code, _, err := sess.engine.TranslateFile(ctx, args[0], stream)
	if err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}

	fmt.Printf("Translated %s (%d bytes of code)\n", args[0], len(code))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("autotrans status\n")
	fmt.Printf("  Input root: %s\n", cfg.InputRoot)
	fmt.Printf("  Generation model: %s (%s)\n", cfg.Generation.Model, cfg.Generation.Provider)
	fmt.Printf("  Embedding model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)

	for _, entry := range []struct{ name, path string }{
		{"Source store", cfg.Stores.SourcePath},
		{"Target store", cfg.Stores.TargetPath},
	} {
		if s, err := store.Load(entry.path, cfg.Embedding.Dimensions); err == nil {
			fmt.Printf("  %s: %d pairs, %d text chunks\n", entry.name, s.Len(), len(s.TextChunks))
		} else {
			fmt.Printf("  %s: not built\n", entry.name)
		}
	}
	if h, err := store.LoadHistory(cfg.Stores.HistoryPath, cfg.Embedding.Dimensions); err == nil {
		fmt.Printf("  History store: %d translations\n", h.Len())
	} else {
		fmt.Printf("  History store: empty\n")
	}

	orch := run.NewOrchestrator(nil, run.Config{
		InputRoot:      cfg.InputRoot,
		Patterns:       cfg.Run.Patterns,
		IgnorePatterns: cfg.Run.IgnorePatterns,
	})

	ctx := context.Background()
	files, err := orch.Discover(ctx)
	if err != nil {
		fmt.Printf("  Candidates: input root not readable (%v)\n", err)
		return nil
	}

	processed := 0
	if data, err := os.ReadFile(cfg.Run.LedgerFile); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				processed++
			}
		}
	}

	fmt.Printf("\nBatch progress:\n")
	fmt.Printf("  Candidates discovered: %d\n", len(files))
	fmt.Printf("  Ledgered (done): %d\n", processed)
	if pending := len(files) - processed; pending > 0 {
		fmt.Printf("  Pending: %d\n", pending)
		fmt.Printf("\nRun 'autotrans run' to translate the remaining files.\n")
	}

	return nil
}
