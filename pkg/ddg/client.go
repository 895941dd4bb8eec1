// Package ddg provides a keyless DuckDuckGo HTML search client, used as the
// free fallback when the paid search provider runs out of credits.
package ddg

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://html.duckduckgo.com"

// Result is one organic search result.
type Result struct {
	URL      string
	Title    string
	Snippet  string
	Position int
}

// Client defines the DuckDuckGo search operation.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithMinInterval sets the minimum spacing between requests.
func WithMinInterval(d time.Duration) Option {
	return func(c *httpClient) {
		c.minInterval = d
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

type httpClient struct {
	baseURL     string
	http        *http.Client
	minInterval time.Duration

	// All requests are serialised through mu and paced by limiter; the free
	// endpoint bans callers that hit it concurrently.
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewClient creates a DuckDuckGo HTML search client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:     defaultBaseURL,
		minInterval: 2 * time.Second,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	c.limiter = rate.NewLimiter(rate.Every(c.minInterval), 1)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		results, retryable, err := c.searchOnce(ctx, query, maxResults)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !retryable || attempt == maxAttempts {
			break
		}

		wait := c.minInterval * time.Duration(attempt+1)
		zap.L().Debug("ddg: rate limited, backing off",
			zap.String("query", query),
			zap.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c *httpClient) searchOnce(ctx context.Context, query string, maxResults int) ([]Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, eris.Wrap(err, "ddg: wait for rate limit")
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/html/",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, false, eris.Wrap(err, "ddg: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, eris.Wrap(err, "ddg: execute request")
	}
	defer resp.Body.Close()

	// 202 is the anti-bot challenge page; treat like a rate limit.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusAccepted {
		io.Copy(io.Discard, resp.Body)
		return nil, true, eris.Errorf("ddg: rate limited (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, eris.Errorf("ddg: unexpected status %d", resp.StatusCode)
	}

	results, err := parseResults(resp.Body, maxResults)
	if err != nil {
		return nil, false, err
	}
	return results, false, nil
}

// parseResults extracts organic results from the DDG HTML page. Result links
// carry the class "result__a"; snippets carry "result__snippet".
func parseResults(r io.Reader, maxResults int) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "ddg: parse html")
	}

	var results []Result
	var snippets []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				href := attr(n, "href")
				if u := resolveRedirect(href); u != "" {
					results = append(results, Result{
						URL:      u,
						Title:    textContent(n),
						Position: len(results) + 1,
					})
				}
			case hasClass(n, "result__snippet"):
				snippets = append(snippets, textContent(n))
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	for i := range results {
		if i < len(snippets) {
			results[i].Snippet = snippets[i]
		}
	}
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// resolveRedirect unwraps DDG's /l/?uddg=<url> redirect links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
