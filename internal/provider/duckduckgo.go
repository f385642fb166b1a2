package provider

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/schilling3003/Perplexica/internal/models"
)

const (
	DuckDuckGoEngine = "duckduckgo"

	duckDuckGoLiteURL    = "https://lite.duckduckgo.com/lite/"
	duckDuckGoMaxResults = 10
	minSearchInterval    = 500 * time.Millisecond
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
}

// DuckDuckGo scrapes the DuckDuckGo Lite HTML page. Calls are spaced at least
// minInterval apart.
type DuckDuckGo struct {
	endpoint    string
	client      *http.Client
	minInterval time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DuckDuckGo{endpoint: duckDuckGoLiteURL, client: client, minInterval: minSearchInterval}
}

func (d *DuckDuckGo) Name() string {
	return DuckDuckGoEngine
}

func (d *DuckDuckGo) Fetch(ctx context.Context, query string) ([]models.Document, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return parseLiteResults(doc, duckDuckGoMaxResults), nil
}

// parseLiteResults pairs each a.result-link with the next td.result-snippet.
func parseLiteResults(doc *goquery.Document, maxResults int) []models.Document {
	var docs []models.Document
	var current *models.Document

	flush := func() {
		if current != nil && current.Metadata.URL != "" {
			if current.Content == "" {
				current.Content = current.Metadata.Title
			}
			docs = append(docs, *current)
		}
		current = nil
	}

	doc.Find("a.result-link, td.result-snippet").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "a" {
			flush()
			if len(docs) >= maxResults {
				return false
			}
			href, _ := s.Attr("href")
			current = &models.Document{
				Metadata: models.Metadata{
					Engine: DuckDuckGoEngine,
					Title:  strings.TrimSpace(s.Text()),
					URL:    cleanDuckDuckGoURL(href),
				},
			}
			return true
		}

		if current != nil {
			current.Content = strings.Join(strings.Fields(s.Text()), " ")
		}
		return true
	})

	if len(docs) < maxResults {
		flush()
	}
	return docs
}

func cleanDuckDuckGoURL(rawURL string) string {
	idx := strings.Index(rawURL, "uddg=")
	if idx == -1 {
		return rawURL
	}

	encoded := rawURL[idx+5:]
	if ampIdx := strings.Index(encoded, "&"); ampIdx != -1 {
		encoded = encoded[:ampIdx]
	}
	if decoded, err := url.QueryUnescape(encoded); err == nil {
		return decoded
	}
	return rawURL
}

func (d *DuckDuckGo) wait(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.lastCall)
	if gap := d.minInterval - elapsed; gap > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gap):
		}
	}
	d.lastCall = time.Now()
	return nil
}
