package translate

import (
	"regexp"
	"strings"
)

// CommentsPlaceholder is substituted when a response carries no comments block.
const CommentsPlaceholder = "No explanations provided"

// Sections holds the separable artifacts parsed out of one model response.
type Sections struct {
	Code         string
	Comments     string
	Reasoning    string
	HasReasoning bool
}

var (
	commentsBlock = regexp.MustCompile("(?is)```comments\n(.*?)\n```")
	thinkTag      = regexp.MustCompile(`(?is)<think>(.*?)</think>`)
	thinkBlock    = regexp.MustCompile("(?is)```think\n(.*?)\n```")
)

// ParseResponse splits a full model response into code, comments, and
// optional reasoning. The first fenced block whose label matches codeLabel
// (case-insensitive) is the code; with no such block the entire response is
// taken as code. A missing comments block yields CommentsPlaceholder.
// Reasoning comes from a <think> region or a ```think block; its absence
// just means no reasoning artifact exists.
func ParseResponse(text, codeLabel string) Sections {
	sections := Sections{
		Code:     strings.TrimSpace(text),
		Comments: CommentsPlaceholder,
	}

	codeBlock := regexp.MustCompile("(?is)```" + regexp.QuoteMeta(codeLabel) + "\n(.*?)\n```")
	if m := codeBlock.FindStringSubmatch(text); m != nil {
		sections.Code = strings.TrimSpace(m[1])
	}

	if m := commentsBlock.FindStringSubmatch(text); m != nil {
		sections.Comments = strings.TrimSpace(m[1])
	}

	if m := thinkTag.FindStringSubmatch(text); m != nil {
		sections.Reasoning = strings.TrimSpace(m[1])
		sections.HasReasoning = true
	} else if m := thinkBlock.FindStringSubmatch(text); m != nil {
		sections.Reasoning = strings.TrimSpace(m[1])
		sections.HasReasoning = true
	}

	return sections
}
