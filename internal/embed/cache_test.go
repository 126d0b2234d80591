package embed

import (
	"context"
	"fmt"
	"testing"
)

type countingProvider struct {
	dims  int
	calls int
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	vec := make([]float32, p.dims)
	for i := range vec {
		vec[i] = float32(len(text))
	}
	return vec, nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *countingProvider) Model() string                  { return "counting" }
func (p *countingProvider) Dimensions() int                { return p.dims }
func (p *countingProvider) Ping(ctx context.Context) error { return nil }

func TestCacheGetSet(t *testing.T) {
	c := NewCache(10)

	if _, found := c.Get("missing"); found {
		t.Error("empty cache reported a hit")
	}

	c.Set("hello", []float32{1, 2, 3})
	got, found := c.Get("hello")
	if !found {
		t.Fatal("cache miss after set")
	}
	if len(got) != 3 || got[0] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache(10)
	original := []float32{1, 2, 3}
	c.Set("x", original)

	got, _ := c.Get("x")
	got[0] = 99

	again, _ := c.Get("x")
	if again[0] != 1 {
		t.Error("cache entry mutated through a returned slice")
	}

	original[1] = 99
	again, _ = c.Get("x")
	if again[1] != 2 {
		t.Error("cache entry mutated through the stored slice")
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, found := c.Get("a"); found {
		t.Error("oldest entry not evicted")
	}
	if _, found := c.Get("c"); !found {
		t.Error("newest entry missing")
	}
}

func TestCachedProviderEmbed(t *testing.T) {
	inner := &countingProvider{dims: 4}
	p := WithCache(inner, 10)

	ctx := context.Background()
	first, err := p.Embed(ctx, "repeated text")
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Embed(ctx, "repeated text")
	if err != nil {
		t.Fatal(err)
	}

	if inner.calls != 1 {
		t.Errorf("inner invoked %d times, want 1", inner.calls)
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Error("cached vector differs from original")
	}
}

func TestCachedProviderEmbedBatch(t *testing.T) {
	inner := &countingProvider{dims: 4}
	p := WithCache(inner, 10)
	ctx := context.Background()

	if _, err := p.Embed(ctx, "warm"); err != nil {
		t.Fatal(err)
	}
	callsAfterWarm := inner.calls

	got, err := p.EmbedBatch(ctx, []string{"warm", "cold one", "cold two"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d results", len(got))
	}
	for i, vec := range got {
		if len(vec) != 4 {
			t.Errorf("result %d has width %d", i, len(vec))
		}
	}

	// Only the two cold texts reach the inner provider.
	if inner.calls != callsAfterWarm+2 {
		t.Errorf("inner invoked %d extra times, want 2", inner.calls-callsAfterWarm)
	}
}

func TestCachedProviderDelegates(t *testing.T) {
	inner := &countingProvider{dims: 4}
	p := WithCache(inner, 10)

	if p.Model() != "counting" {
		t.Errorf("Model = %q", p.Model())
	}
	if p.Dimensions() != 4 {
		t.Errorf("Dimensions = %d", p.Dimensions())
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping = %v", err)
	}
}

func TestCacheDistinctTexts(t *testing.T) {
	c := NewCache(100)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("text-%d", i), []float32{float32(i)})
	}
	for i := 0; i < 10; i++ {
		got, found := c.Get(fmt.Sprintf("text-%d", i))
		if !found || got[0] != float32(i) {
			t.Errorf("entry %d wrong: %v %v", i, got, found)
		}
	}
}
