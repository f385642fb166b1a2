package agent

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/schilling3003/Perplexica/internal/models"
)

type promptData struct {
	Query       string
	ChatHistory string
	Context     string
	Date        string
}

type summaryData struct {
	Question string
	Content  string
}

func parseTemplate(name, text string) (*template.Template, error) {
	if text == "" {
		return nil, nil
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}

// FormatContext numbers documents from 1 so answers can cite them.
func FormatContext(docs []models.Document) string {
	lines := make([]string, 0, len(docs))
	for i, doc := range docs {
		title := doc.Metadata.Title
		if title == "" {
			title = doc.Metadata.URL
		}
		lines = append(lines, fmt.Sprintf("%d. %s %s", i+1, title, doc.Content))
	}
	return strings.Join(lines, "\n")
}
