package lookup

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://warframe.fandom.com"
	resultSelector = "li.unified-search__result"
	titleSelector  = "a.unified-search__result__title"
	snippetSel     = ".unified-search__result__snippet"
	maxSnippet     = 300
)

type Result struct {
	Query   string
	Title   string
	URL     string
	Snippet string
	// Found is false when URL is only the search page.
	Found bool
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func New(baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// SearchURL is the wiki search page for query, percent-encoded the way
// browsers encode a single URI component.
func (c *Client) SearchURL(query string) string {
	return SearchURL(c.baseURL, query)
}

func SearchURL(baseURL, query string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return strings.TrimRight(baseURL, "/") + "/wiki/Special:Search?search=" + escaped
}

// Lookup returns the first wiki search hit, or the search page itself when the
// page cannot be fetched or parsed.
func (c *Client) Lookup(ctx context.Context, query string) Result {
	fallback := Result{Query: query, Title: query, URL: c.SearchURL(query)}

	hit, err := c.firstHit(ctx, fallback.URL)
	if err != nil {
		c.logger.Debug("wiki lookup fell back to search page", zap.String("query", query), zap.Error(err))
		return fallback
	}
	if hit == nil {
		return fallback
	}
	hit.Query = query
	return *hit
}

func (c *Client) firstHit(ctx context.Context, searchURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "kymera-bot/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wiki search: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse wiki search: %w", err)
	}

	var hit *Result
	doc.Find(resultSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		link := item.Find(titleSelector).First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return true
		}
		hit = &Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     c.absolute(href),
			Snippet: truncate(strings.Join(strings.Fields(item.Find(snippetSel).First().Text()), " "), maxSnippet),
			Found:   true,
		}
		return false
	})
	return hit, nil
}

func (c *Client) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
