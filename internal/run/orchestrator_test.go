package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autotrans/autotrans/internal/extract"
	"github.com/autotrans/autotrans/internal/llm"
	"github.com/autotrans/autotrans/internal/memory"
	"github.com/autotrans/autotrans/internal/prompt"
	"github.com/autotrans/autotrans/internal/translate"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 4), nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func (fakeEmbedder) Model() string                  { return "fake" }
func (fakeEmbedder) Dimensions() int                { return 4 }
func (fakeEmbedder) Ping(ctx context.Context) error { return nil }

// scriptedGenerator fails whenever the prompt carries the failure marker and
// remembers which code snippets it was asked to translate.
type scriptedGenerator struct {
	calls   int
	prompts []string
}

const failMarker = "(fail me)"

func (g *scriptedGenerator) Generate(ctx context.Context, p string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, p)
	if strings.Contains(p, failMarker) {
		return "", fmt.Errorf("scripted backend failure")
	}
	return "```lisp\n(ok)\n```", nil
}

func (g *scriptedGenerator) GenerateStream(ctx context.Context, p string, fn llm.StreamFunc) (string, error) {
	return g.Generate(ctx, p)
}

func (g *scriptedGenerator) Model() string                  { return "scripted" }
func (g *scriptedGenerator) Ping(ctx context.Context) error { return nil }

type fixture struct {
	dir    string
	input  string
	gen    *scriptedGenerator
	orch   *Orchestrator
	ledger string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "input")
	if err := os.MkdirAll(input, 0755); err != nil {
		t.Fatal(err)
	}

	gen := &scriptedGenerator{}
	mem := memory.NewManager(memory.Config{
		HistoryStorePath: filepath.Join(dir, "done.json"),
		Dimensions:       4,
	}, fakeEmbedder{}, extract.NewExtractor())

	engine := translate.NewEngine(gen, mem,
		prompt.NewAssembler("Lisp", "modern Common Lisp", "lisp"),
		translate.Config{
			CodeFenceLabel: "lisp",
			CodeExt:        ".autot",
			CommentExt:     ".comment",
			ReasoningExt:   ".think",
		})

	ledger := filepath.Join(dir, "processed_files.txt")
	orch := NewOrchestrator(engine, Config{
		InputRoot:    input,
		Patterns:     []string{"*.lisp*"},
		PathlistFile: filepath.Join(dir, "pathlist.txt"),
		LedgerFile:   ledger,
	})

	return &fixture{dir: dir, input: input, gen: gen, orch: orch, ledger: ledger}
}

func (f *fixture) addFile(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(f.input, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) ledgerLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.ledger)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestDiscover(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.lisp", "(a)")
	f.addFile(t, "sub/b.lisp", "(b)")
	f.addFile(t, "sub/notes.md", "not a candidate")
	f.addFile(t, "c.lisp-old", "(c)")

	files, err := f.orch.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// *.lisp* also matches suffixed variants like .lisp-old.
	if len(files) != 3 {
		t.Fatalf("discovered %d files: %v", len(files), files)
	}
	for _, file := range files {
		if strings.HasSuffix(file, ".md") {
			t.Errorf("non-candidate discovered: %s", file)
		}
	}
}

func TestDiscoverHonorsGitignore(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "keep.lisp", "(k)")
	f.addFile(t, "scratch/drop.lisp", "(d)")
	f.addFile(t, ".gitignore", "scratch/\n")

	files, err := f.orch.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(files) != 1 || !strings.HasSuffix(files[0], "keep.lisp") {
		t.Errorf("gitignore not honored: %v", files)
	}
}

func TestDiscoverPrunesIgnoredDirectories(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.IgnorePatterns = []string{".git/", "vendor/"}
	f.addFile(t, "keep.lisp", "(k)")
	f.addFile(t, ".git/objects/blob.lisp", "(g)")
	f.addFile(t, "vendor/dep/code.lisp", "(v)")

	// The directory-form pattern must match the walk's directory probe, so
	// ignored trees are skipped outright instead of filtered file by file.
	matcher := f.orch.buildIgnoreMatcher()
	for _, dir := range []string{".git/", "vendor/"} {
		if !matcher.MatchesPath(dir) {
			t.Errorf("pattern does not match directory probe %q", dir)
		}
	}

	files, err := f.orch.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || !strings.HasSuffix(files[0], "keep.lisp") {
		t.Errorf("ignored directories not excluded: %v", files)
	}
}

func TestDiscoverMissingRoot(t *testing.T) {
	f := newFixture(t)
	f.orch.cfg.InputRoot = filepath.Join(f.dir, "nope")

	if _, err := f.orch.Discover(context.Background()); err == nil {
		t.Error("expected error for missing input root")
	}
}

func TestRunTranslatesAndLedgers(t *testing.T) {
	f := newFixture(t)
	a := f.addFile(t, "a.lisp", "(a)")
	b := f.addFile(t, "b.lisp", "(b)")

	result, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Discovered != 2 || result.Translated != 2 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}

	lines := f.ledgerLines(t)
	if len(lines) != 2 {
		t.Fatalf("ledger has %d lines: %v", len(lines), lines)
	}

	// Artifacts written next to the inputs.
	for _, src := range []string{a, b} {
		artifact := strings.TrimSuffix(src, ".lisp") + ".autot"
		if _, err := os.Stat(artifact); err != nil {
			t.Errorf("missing artifact %s", artifact)
		}
	}

	// Pathlist overwritten with every discovered path.
	data, err := os.ReadFile(filepath.Join(f.dir, "pathlist.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), a) || !strings.Contains(string(data), b) {
		t.Errorf("pathlist incomplete: %s", data)
	}
}

func TestRunResumesFromLedger(t *testing.T) {
	f := newFixture(t)
	a := f.addFile(t, "a.lisp", "(a)")
	f.addFile(t, "b.lisp", "(b)")

	// Simulate a previous run that completed a.lisp before being interrupted.
	if err := os.WriteFile(f.ledger, []byte(a+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Skipped != 1 || result.Translated != 1 {
		t.Errorf("result = %+v", result)
	}
	if f.gen.calls != 1 {
		t.Errorf("backend invoked %d times, want 1", f.gen.calls)
	}
	for _, p := range f.gen.prompts {
		if strings.Contains(p, "(a)") {
			t.Error("ledgered file was re-translated")
		}
	}
}

func TestRunFailureStaysOffLedgerAndRetries(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "bad.lisp", failMarker)
	good := f.addFile(t, "good.lisp", "(g)")

	result, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Failed != 1 || result.Translated != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v", result.Errors)
	}

	lines := f.ledgerLines(t)
	if len(lines) != 1 || lines[0] != good {
		t.Errorf("ledger = %v, want only %s", lines, good)
	}

	// The next run retries the failed file and skips the ledgered one.
	second, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.Skipped != 1 || second.Failed != 1 {
		t.Errorf("second result = %+v", second)
	}
}

func TestRunCanceledContext(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.lisp", "(a)")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.orch.Run(ctx)
	if err == nil {
		t.Error("expected context error")
	}
	if result != nil && result.Translated != 0 {
		t.Errorf("canceled run translated files: %+v", result)
	}
	if f.gen.calls != 0 {
		t.Errorf("backend invoked %d times after cancellation", f.gen.calls)
	}
}

func TestRunProgressCallback(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.lisp", "(a)")
	f.addFile(t, "b.lisp", "(b)")

	var seen []string
	f.orch.SetProgressCallback(func(path string, done, total int) {
		seen = append(seen, fmt.Sprintf("%s %d/%d", filepath.Base(path), done, total))
	})

	if _, err := f.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 {
		t.Fatalf("progress fired %d times: %v", len(seen), seen)
	}
	if seen[0] != "a.lisp 1/2" || seen[1] != "b.lisp 2/2" {
		t.Errorf("progress = %v", seen)
	}
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		want     bool
	}{
		{"code.lisp", []string{"*.lisp*"}, true},
		{"code.lisp-backup", []string{"*.lisp*"}, true},
		{"code.lsp", []string{"*.lisp*"}, false},
		{"readme.md", []string{"*.lisp*", "*.md"}, true},
		{"anything", nil, false},
	}

	for _, tt := range tests {
		if got := matchesAny(tt.name, tt.patterns); got != tt.want {
			t.Errorf("matchesAny(%q, %v) = %v, want %v", tt.name, tt.patterns, got, tt.want)
		}
	}
}
