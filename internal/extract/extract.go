// Package extract pulls plain text out of documentation files.
//
// Extraction is best effort: unsupported file types, missing files, and
// malformed content all degrade to an empty string with a logged warning so
// that a corpus scan never halts on a single bad document.
package extract

import (
	"bytes"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// SupportedPatterns are the file patterns collected during a directory scan.
var SupportedPatterns = []string{"*.txt", "*.html", "*.pdf"}

// Extractor converts documentation files to plain text.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the text content of the file at path, or an empty string
// if the file type is unsupported or extraction fails.
func (e *Extractor) Extract(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return e.extractText(path)
	case ".html", ".htm":
		return e.extractHTML(path)
	case ".pdf":
		return e.extractPDF(path)
	default:
		log.Printf("warning: unsupported file type: %s", path)
		return ""
	}
}

// ExtractTree extracts and concatenates every supported file under root.
// If root is a regular file it is extracted directly. Each directory entry's
// content is prefixed with a source marker naming the file it came from.
func (e *Extractor) ExtractTree(root string) string {
	info, err := os.Stat(root)
	if err != nil {
		log.Printf("warning: cannot read corpus path %s: %v", root, err)
		return ""
	}

	if !info.IsDir() {
		return e.Extract(root)
	}

	var parts []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("warning: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !matchesAny(filepath.Base(path), SupportedPatterns) {
			return nil
		}

		content := e.Extract(path)
		if strings.TrimSpace(content) == "" {
			return nil
		}
		parts = append(parts, "\n--- Content from "+filepath.Base(path)+" ---\n")
		parts = append(parts, content)
		return nil
	})
	if walkErr != nil {
		log.Printf("warning: corpus walk failed for %s: %v", root, walkErr)
	}

	return strings.Join(parts, "\n")
}

func (e *Extractor) extractText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("warning: error reading file %s: %v", path, err)
		return ""
	}
	return string(data)
}

func (e *Extractor) extractHTML(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("warning: error reading file %s: %v", path, err)
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		log.Printf("warning: error parsing HTML %s: %v", path, err)
		return ""
	}

	doc.Find("script, style").Remove()
	return doc.Text()
}

func (e *Extractor) extractPDF(path string) string {
	f, reader, err := pdf.Open(path)
	if err != nil {
		log.Printf("warning: error opening PDF %s: %v", path, err)
		return ""
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("warning: error extracting page %d of %s: %v", i, path, err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
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
