package agent

import (
	"context"
	"sync"
	"text/template"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/fetch"
	"github.com/schilling3003/Perplexica/internal/llm"
	"github.com/schilling3003/Perplexica/internal/models"
)

const LinkEngine = "link"

// LinkFetcher downloads a page for summarization.
type LinkFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

type SummarizerOptions struct {
	Fetcher         LinkFetcher
	Prompt          string
	MaxLinks        int
	MaxContentChars int
}

type summarizer struct {
	fetcher         LinkFetcher
	tmpl            *template.Template
	maxLinks        int
	maxContentChars int
	logger          *zerolog.Logger
}

// summarize turns each link into one document. Links that cannot be fetched
// or summarized are skipped.
func (s *summarizer) summarize(ctx context.Context, model llm.LLMClient, links []string, question string) []models.Document {
	if s.maxLinks > 0 && len(links) > s.maxLinks {
		links = links[:s.maxLinks]
	}

	docs := make([]*models.Document, len(links))
	var wg sync.WaitGroup

	for i, link := range links {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			doc, err := s.summarizeLink(ctx, model, link, question)
			if err != nil {
				s.logger.Warn().Err(err).Str("url", link).Msg("Failed to summarize link")
				return
			}
			docs[i] = doc
		}(i, link)
	}
	wg.Wait()

	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		if doc != nil {
			out = append(out, *doc)
		}
	}
	return out
}

func (s *summarizer) summarizeLink(ctx context.Context, model llm.LLMClient, link, question string) (*models.Document, error) {
	page, err := s.fetcher.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}

	content := truncateRunes(page.Content, s.maxContentChars)

	prompt, err := render(s.tmpl, summaryData{Question: question, Content: content})
	if err != nil {
		return nil, err
	}

	resp, err := model.InvokeModel(ctx, llm.LLMRequest{Prompt: prompt, MaxTokens: 1024, Temperature: 0})
	if err != nil {
		return nil, err
	}

	title := page.Title
	if title == "" {
		title = link
	}
	return &models.Document{
		Content:  resp.Content,
		Metadata: models.Metadata{Engine: LinkEngine, URL: link, Title: title},
	}, nil
}

// truncateRunes keeps at most n runes of s; n <= 0 keeps everything.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
