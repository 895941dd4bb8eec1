// Package scrape turns a ranked URL into clean plain text through a tiered
// extraction waterfall: inline search markdown, cache, local fetch plus
// readability, the Jina reader API, and a regex tag strip as the last resort.
package scrape

import (
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"context"

	"github.com/rotisserie/eris"
)

// Rotated to look like ordinary browser traffic; some sites 403 obvious bots.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
}

const (
	maxRedirects = 5
	maxBodyBytes = 2 << 20
	maxRetries   = 2
)

// Fetcher fetches raw HTML with browser-like headers and bounded retries.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a fetcher with a capped redirect policy.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads a URL and returns the body text. Transient failures (429,
// 503, timeouts) get two retries with linear backoff; anything else fails
// immediately with a short error the caller records on the page.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		body, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second * time.Duration(attempt+1)):
		}
	}
	return "", lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, eris.Wrap(err, "scrape: create request")
	}
	for key, value := range browserHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Transport errors are mostly timeouts and resets; worth a retry.
		return "", true, eris.Wrap(err, "scrape: fetch")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", false, eris.Wrap(err, "scrape: read body")
	}

	if blocked, blockType := detectBlock(resp, body); blocked {
		return "", false, eris.Errorf("scrape: blocked (%s)", blockType)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return "", true, eris.Errorf("scrape: HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", false, eris.Errorf("scrape: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		if strings.Contains(contentType, "application/json") {
			return string(body), false, nil
		}
		return "", false, eris.Errorf("scrape: non-HTML content: %.50s", contentType)
	}

	return string(body), false, nil
}

func browserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                userAgents[rand.Intn(len(userAgents))],
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.9",
		"Cache-Control":             "no-cache",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Upgrade-Insecure-Requests": "1",
	}
}

type blockType string

const (
	blockCloudflare blockType = "cloudflare"
	blockCaptcha    blockType = "captcha"
	blockJSShell    blockType = "js_shell"
)

// detectBlock spots anti-bot pages so the waterfall escalates to the reader
// service instead of treating a challenge page as content.
func detectBlock(resp *http.Response, body []byte) (bool, blockType) {
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
			return true, blockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "checking your browser") || strings.Contains(lower, "cf-browser-verification") {
		return true, blockCloudflare
	}
	if strings.Contains(lower, "recaptcha") || strings.Contains(lower, "hcaptcha") {
		return true, blockCaptcha
	}
	if len(body) < 2000 &&
		strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
		return true, blockJSShell
	}
	return false, ""
}
