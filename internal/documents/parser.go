// Package documents extracts raw note text from files so externally
// written case notes (.txt, .pdf) can be imported for ingestion.
package documents

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Parser extracts plain text from a note file.
type Parser interface {
	Parse(filePath string) (string, error)
}

// ForFile returns the parser matching the file extension.
func ForFile(filePath string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".txt":
		return &TextParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filePath))
	}
}

// TextParser reads plain-text note files.
type TextParser struct{}

// Parse returns the file content as-is.
func (p *TextParser) Parse(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}
	return string(data), nil
}

// PDFParser extracts text from PDF note files.
type PDFParser struct{}

// Parse extracts the text of every page, pages separated by blank lines.
func (p *PDFParser) Parse(filePath string) (string, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err == nil && strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}
