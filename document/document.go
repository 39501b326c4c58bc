// Package document reads review sources from disk. PDF files are converted
// to plain text page by page; markdown and text files are read as is.
package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrDocumentRead wraps every failure to produce document text.
	ErrDocumentRead = errors.New("document read failed")
	// ErrUnsupportedFormat is returned for extensions Read does not know.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", ErrDocumentRead)
	// ErrEmptyDocument is returned when a document contains no text.
	ErrEmptyDocument = fmt.Errorf("%w: empty document", ErrDocumentRead)
)

var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".text":     true,
}

// Supported reports whether Read accepts the file's extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".pdf" || textExtensions[ext]
}

// Read returns the text content of the document at path.
func Read(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		text string
		err  error
	)
	switch {
	case ext == ".pdf":
		text, err = readPDF(path)
	case textExtensions[ext]:
		text, err = readText(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrDocumentRead, path, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}

	return text, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is the document chosen by the caller
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readPDF joins the plain text of all pages with newlines.
func readPDF(path string) (text string, err error) {
	defer func() {
		// the pdf reader panics on some malformed inputs
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, content)
	}

	return strings.Join(pages, "\n"), nil
}
