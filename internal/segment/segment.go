// Package segment splits documentation text into code/context pairs and
// standalone prose chunks for embedding.
package segment

import (
	"regexp"
	"strings"
)

// Pair is a code-like span together with the prose surrounding it.
type Pair struct {
	Code    string
	Context string
}

// minChunkWords is the minimum word count for a standalone prose chunk;
// shorter chunks are discarded.
const minChunkWords = 5

var blockSplit = regexp.MustCompile(`\n\s*\n`)

// ExtractPairs finds (code, context) pairs in text. Text is split into
// blocks on blank-line boundaries; each parenthesized code-like span in a
// block becomes a pair whose context is the block with every span removed
// and whitespace collapsed. A block can contribute any number of pairs, all
// sharing the same context.
func ExtractPairs(text string) []Pair {
	var pairs []Pair

	for _, block := range blockSplit.Split(text, -1) {
		spans := codeSpans(block)
		if len(spans) == 0 {
			continue
		}

		context := collapse(removeSpans(block, spans))
		for _, s := range spans {
			code := strings.TrimSpace(block[s[0]:s[1]])
			if code == "" {
				continue
			}
			pairs = append(pairs, Pair{Code: code, Context: context})
		}
	}

	return pairs
}

// ExtractChunks returns standalone prose chunks: the text with every
// code-like span removed, split on blank-line boundaries, keeping only
// chunks of at least minChunkWords words. Chunks are an independent view of
// the text and need not correspond to any pair.
func ExtractChunks(text string) []string {
	stripped := removeSpans(text, codeSpans(text))

	var chunks []string
	for _, block := range blockSplit.Split(stripped, -1) {
		chunk := strings.TrimSpace(block)
		if chunk == "" {
			continue
		}
		if len(strings.Fields(chunk)) >= minChunkWords {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

var lineComment = regexp.MustCompile(`;[^\n]*`)

// Normalize prepares a source snippet for the translation-history store:
// line comments are stripped and whitespace is collapsed to single spaces.
func Normalize(code string) string {
	return collapse(lineComment.ReplaceAllString(code, ""))
}

// codeSpans returns the byte ranges of parenthesized code-like spans in s.
// Matching is a depth-counting scan, not a parser: parentheses inside string
// literals or comments will mis-segment, which is accepted as a best-effort
// heuristic. An unclosed span at end of input is abandoned.
func codeSpans(s string) [][2]int {
	var spans [][2]int
	depth := 0
	start := -1

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			if depth > 0 {
				depth--
				if depth == 0 {
					spans = append(spans, [2]int{start, i + 1})
					start = -1
				}
			}
		}
	}

	return spans
}

// removeSpans cuts the given byte ranges out of s. Spans must be sorted and
// non-overlapping, which codeSpans guarantees.
func removeSpans(s string, spans [][2]int) string {
	if len(spans) == 0 {
		return s
	}

	var sb strings.Builder
	prev := 0
	for _, span := range spans {
		sb.WriteString(s[prev:span[0]])
		prev = span[1]
	}
	sb.WriteString(s[prev:])
	return sb.String()
}

// collapse reduces all whitespace runs to single spaces and trims the ends.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
