package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/schilling3003/Perplexica/internal/models"
)

// AllEngines is the engine identifier for SearxNG's default engine set.
const AllEngines = ""

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Thumbnail string `json:"thumbnail"`
	ImgSrc    string `json:"img_src"`
	IframeSrc string `json:"iframe_src"`
	Engine    string `json:"engine"`
}

// Searxng queries a SearxNG instance restricted to one engine.
type Searxng struct {
	baseURL string
	engine  string
	client  *http.Client
}

func NewSearxng(baseURL string, engine string, client *http.Client) *Searxng {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Searxng{baseURL: strings.TrimRight(baseURL, "/"), engine: engine, client: client}
}

func (s *Searxng) Name() string {
	if s.engine == AllEngines {
		return "searxng"
	}
	return s.engine
}

func (s *Searxng) Fetch(ctx context.Context, query string) ([]models.Document, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if s.engine != AllEngines {
		params.Set("engines", s.engine)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	var body searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode searxng response: %w", err)
	}

	docs := make([]models.Document, 0, len(body.Results))
	for _, r := range body.Results {
		content := r.Content
		if content == "" {
			content = r.Title
		}

		thumbnail := r.Thumbnail
		if thumbnail == "" {
			thumbnail = r.ImgSrc
		}

		docs = append(docs, models.Document{
			Content: content,
			Metadata: models.Metadata{
				Engine:    s.Name(),
				URL:       r.URL,
				Title:     r.Title,
				Thumbnail: thumbnail,
				Embed:     r.IframeSrc,
			},
		})
	}

	return docs, nil
}
