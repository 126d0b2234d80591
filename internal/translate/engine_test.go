package translate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autotrans/autotrans/internal/extract"
	"github.com/autotrans/autotrans/internal/llm"
	"github.com/autotrans/autotrans/internal/memory"
	"github.com/autotrans/autotrans/internal/prompt"
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

// fakeGenerator counts invocations so the at-most-once cache guarantee can
// be asserted.
type fakeGenerator struct {
	response string
	calls    int
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	return g.response, nil
}

func (g *fakeGenerator) GenerateStream(ctx context.Context, prompt string, fn llm.StreamFunc) (string, error) {
	g.calls++
	for _, fragment := range []string{g.response[:len(g.response)/2], g.response[len(g.response)/2:]} {
		if fn != nil {
			if err := fn(fragment); err != nil {
				return "", err
			}
		}
	}
	return g.response, nil
}

func (g *fakeGenerator) Model() string                  { return "fake-model" }
func (g *fakeGenerator) Ping(ctx context.Context) error { return nil }

func newTestEngine(t *testing.T, gen *fakeGenerator) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()

	mem := memory.NewManager(memory.Config{
		HistoryStorePath: filepath.Join(dir, "done.json"),
		Dimensions:       4,
	}, fakeEmbedder{}, extract.NewExtractor())

	assembler := prompt.NewAssembler("Lisp", "modern Common Lisp", "lisp")

	engine := NewEngine(gen, mem, assembler, Config{
		CodeFenceLabel: "lisp",
		CodeExt:        ".autot",
		CommentExt:     ".comment",
		ReasoningExt:   ".think",
	})
	return engine, dir
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readArtifact(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("artifact %s: %v", path, err)
	}
	return string(data)
}

const cannedResponse = "<think>reasoned</think>\n```lisp\n(translated)\n```\n```comments\nexplained\n```"

func TestTranslateFileWritesArtifacts(t *testing.T) {
	gen := &fakeGenerator{response: cannedResponse}
	engine, dir := newTestEngine(t, gen)

	input := writeInput(t, dir, "sample.lisp", "(original)")
	code, comments, err := engine.TranslateFile(context.Background(), input, false)
	if err != nil {
		t.Fatal(err)
	}

	if code != "(translated)" {
		t.Errorf("code = %q", code)
	}
	if comments != "explained" {
		t.Errorf("comments = %q", comments)
	}

	base := filepath.Join(dir, "sample")
	if got := readArtifact(t, base+".autot"); got != "(translated)" {
		t.Errorf("code artifact = %q", got)
	}
	if got := readArtifact(t, base+".comment"); got != "explained" {
		t.Errorf("comment artifact = %q", got)
	}
	if got := readArtifact(t, base+".think"); got != "reasoned" {
		t.Errorf("reasoning artifact = %q", got)
	}
}

func TestTranslateFileNoReasoningNoArtifact(t *testing.T) {
	gen := &fakeGenerator{response: "```lisp\n(x)\n```"}
	engine, dir := newTestEngine(t, gen)

	input := writeInput(t, dir, "plain.lisp", "(original)")
	if _, _, err := engine.TranslateFile(context.Background(), input, false); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "plain.think")); !os.IsNotExist(err) {
		t.Error("reasoning artifact written for response without reasoning")
	}
	if got := readArtifact(t, filepath.Join(dir, "plain.comment")); got != CommentsPlaceholder {
		t.Errorf("comment artifact = %q, want placeholder", got)
	}
}

func TestTranslateFileCacheAtMostOnce(t *testing.T) {
	gen := &fakeGenerator{response: cannedResponse}
	engine, dir := newTestEngine(t, gen)

	// Two files, byte-identical content.
	first := writeInput(t, dir, "a.lisp", "(same content)")
	second := writeInput(t, dir, "b.lisp", "(same content)")

	codeA, _, err := engine.TranslateFile(context.Background(), first, false)
	if err != nil {
		t.Fatal(err)
	}
	codeB, _, err := engine.TranslateFile(context.Background(), second, false)
	if err != nil {
		t.Fatal(err)
	}

	if gen.calls != 1 {
		t.Errorf("backend invoked %d times, want 1", gen.calls)
	}
	if codeA != codeB {
		t.Errorf("cached replay differs: %q vs %q", codeA, codeB)
	}

	// The replay still writes the second file's artifacts.
	if got := readArtifact(t, filepath.Join(dir, "b.autot")); got != "(translated)" {
		t.Errorf("replayed artifact = %q", got)
	}
}

func TestTranslateFileDistinctContentDistinctCalls(t *testing.T) {
	gen := &fakeGenerator{response: cannedResponse}
	engine, dir := newTestEngine(t, gen)

	first := writeInput(t, dir, "a.lisp", "(one)")
	second := writeInput(t, dir, "b.lisp", "(two)")

	if _, _, err := engine.TranslateFile(context.Background(), first, false); err != nil {
		t.Fatal(err)
	}
	if _, _, err := engine.TranslateFile(context.Background(), second, false); err != nil {
		t.Fatal(err)
	}

	if gen.calls != 2 {
		t.Errorf("backend invoked %d times, want 2", gen.calls)
	}
}

func TestTranslateFileStreamingEchoes(t *testing.T) {
	gen := &fakeGenerator{response: "```lisp\n(s)\n```"}
	engine, dir := newTestEngine(t, gen)

	var echoed strings.Builder
	engine.cfg.Echo = &echoed

	input := writeInput(t, dir, "s.lisp", "(src)")
	code, _, err := engine.TranslateFile(context.Background(), input, true)
	if err != nil {
		t.Fatal(err)
	}
	if code != "(s)" {
		t.Errorf("code = %q", code)
	}
	if !strings.Contains(echoed.String(), "```lisp") {
		t.Errorf("stream not echoed: %q", echoed.String())
	}
}

func TestTranslateFileRecordsHistory(t *testing.T) {
	gen := &fakeGenerator{response: cannedResponse}
	engine, dir := newTestEngine(t, gen)

	input := writeInput(t, dir, "h.lisp", "(hist me) ; with a comment")
	if _, _, err := engine.TranslateFile(context.Background(), input, false); err != nil {
		t.Fatal(err)
	}

	hist := engine.memory.History
	if hist.Len() != 1 {
		t.Fatalf("history has %d entries, want 1", hist.Len())
	}
	if hist.Samples[0] != "(hist me)" {
		t.Errorf("history snippet = %q", hist.Samples[0])
	}
	if hist.Filepaths[0] != input {
		t.Errorf("history filepath = %q", hist.Filepaths[0])
	}

	// Persisted after the append.
	if _, err := os.Stat(filepath.Join(dir, "done.json")); err != nil {
		t.Errorf("history store not persisted: %v", err)
	}
}

func TestTranslateFileMissingInput(t *testing.T) {
	gen := &fakeGenerator{response: cannedResponse}
	engine, _ := newTestEngine(t, gen)

	if _, _, err := engine.TranslateFile(context.Background(), "/does/not/exist.lisp", false); err == nil {
		t.Error("expected error for missing input")
	}
	if gen.calls != 0 {
		t.Error("backend invoked for unreadable input")
	}
}
