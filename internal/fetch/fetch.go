package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultTimeout = 30 * time.Second
	MaxReadSize    = int64(5 * 1024 * 1024)
)

// Page is a fetched web page reduced to readable text.
type Page struct {
	URL     string
	Title   string
	Content string
}

type Fetcher struct {
	client *http.Client
}

func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{client: client}
}

// Fetch downloads url and converts HTML bodies to markdown. Other text
// content types are returned as is.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("URL must start with http:// or https://: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "perplexica-fetch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxReadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	page := &Page{URL: url, Content: string(body)}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return page, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, nav, footer, header").Remove()
	bodyHTML, err := doc.Find("body").Html()
	if err != nil || bodyHTML == "" {
		page.Content = ExtractText(doc)
		return page, nil
	}

	markdown, err := ConvertHTMLToMarkdown(bodyHTML)
	if err != nil {
		page.Content = ExtractText(doc)
		return page, nil
	}
	page.Content = markdown
	return page, nil
}

// ExtractText returns the whitespace-collapsed body text.
func ExtractText(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}

func ConvertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}

	lines := strings.Split(markdown, "\n")
	var result []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return strings.Join(result, "\n"), nil
}
