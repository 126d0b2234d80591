// Package prompt renders the fixed-structure translation instruction prompt
// from the three context-memory stores.
package prompt

import (
	"fmt"
	"strings"

	"github.com/autotrans/autotrans/internal/store"
)

// maxExamples bounds how many examples each store contributes.
const maxExamples = 3

// noneToken is rendered when a store has nothing to contribute.
const noneToken = "None"

// Assembler builds prompts for the generation backend. Build is a pure
// function of the stores' current contents and the code to translate.
type Assembler struct {
	SourceLanguage string
	TargetLanguage string
	CodeFenceLabel string
}

// NewAssembler creates a prompt assembler.
func NewAssembler(sourceLang, targetLang, codeFenceLabel string) *Assembler {
	return &Assembler{
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		CodeFenceLabel: codeFenceLabel,
	}
}

// Build assembles the instruction prompt. Example selection is positional:
// the first examples of the source and target stores in store order, and the
// most recent translation-history snippets. Embedding similarity is never
// consulted; see the design notes before changing this.
func (a *Assembler) Build(src, trg *store.Store, hist *store.History, code string) string {
	srcBlock := renderPairs(src.FirstPairs(maxExamples))
	trgBlock := renderPairs(trg.FirstPairs(maxExamples))
	prevBlock := renderSnippets(hist.Last(maxExamples))

	return fmt.Sprintf(
		"Translate this %[1]s code to %[2]s while preserving all functionality.\n"+
			"The first knowledge source provided shall help you understand what this %[1]s code actually does, "+
			"the second language source describes the target implementation, so adhere to it in your answers. "+
			"The third knowledge source represents what you have done so far: You must always remain consistent to it!\n\n"+
			"While translating this code, always proceed step by step: "+
			"What is the expected input? What does the source code you shall translate do? "+
			"How do you preserve all its functionality using the target implementation?\n\n"+
			"Source Examples:\n%[3]s\n\n"+
			"Target Examples:\n%[4]s\n\n"+
			"Previous Translations:\n%[5]s\n\n"+
			"Code to translate:\n%[6]s\n\n"+
			"Provide the translated code in a ```%[7]s block and explanations in a ```comments block. "+
			"If you include chain-of-thought or hidden reasoning, wrap it in <think>...</think> (or a ```think block).",
		a.SourceLanguage, a.TargetLanguage,
		srcBlock, trgBlock, prevBlock,
		code, a.CodeFenceLabel,
	)
}

// renderPairs renders samples as "Context: .../Code: ..." stanzas separated
// by blank lines, or the none token when there are no samples.
func renderPairs(samples []store.Sample) string {
	if len(samples) == 0 {
		return noneToken
	}

	rendered := make([]string, 0, len(samples))
	for _, s := range samples {
		rendered = append(rendered, fmt.Sprintf("Context: %s\nCode: %s", s.Context, s.Code))
	}
	return strings.Join(rendered, "\n\n")
}

// renderSnippets renders history snippets separated by blank lines.
func renderSnippets(snippets []string) string {
	if len(snippets) == 0 {
		return noneToken
	}
	return strings.Join(snippets, "\n\n")
}
