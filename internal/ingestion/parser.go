package ingestion

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/schilling3003/Perplexica/internal/fetch"
)

// SupportedExtensions lists the file types the parser accepts.
var SupportedExtensions = []string{".txt", ".md", ".html"}

type Document struct {
	ID       string
	Title    string
	Content  string
	Filename string
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) ParseFile(path string) (*Document, error) {
	path = strings.TrimSpace(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return p.Parse(filepath.Base(path), data)
}

// Parse extracts plain text from an uploaded file. Text and markdown are kept
// as is; HTML is reduced to its visible text.
func (p *Parser) Parse(filename string, data []byte) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !Supported(filename) {
		return nil, fmt.Errorf("unsupported file type %q (expected one of %s)", ext, strings.Join(SupportedExtensions, ", "))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("file %s is empty", filename)
	}

	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	content := string(data)

	if ext == ".html" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse html %s: %w", filename, err)
		}
		doc.Find("script, style, noscript").Remove()
		if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
			title = t
		}
		content = fetch.ExtractText(doc)
		if content == "" {
			return nil, fmt.Errorf("file %s has no text content", filename)
		}
	}

	return &Document{
		ID:       uuid.New().String(),
		Title:    title,
		Content:  content,
		Filename: filename,
	}, nil
}

func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
