// Package fetcher pulls the homepage deal feed over HTTP. Each endpoint
// page is fetched with session cookies and a rotating user agent, retried
// a fixed number of times, and handed to the extractor: the structured
// JSON path when the feed cooperates, the HTML fallback when it doesn't.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/pauljones0/zdm-deals-bot/internal/extractor"
	"github.com/pauljones0/zdm-deals-bot/internal/models"
	"github.com/pauljones0/zdm-deals-bot/internal/util"
)

// MaxRetry is the per-endpoint attempt budget.
const MaxRetry = 3

const requestTimeout = 30 * time.Second

// maxBodyBytes caps how much of a response we buffer for extraction.
const maxBodyBytes = 4 << 20

// EndpointURLs are the feed pages fetched per run, in order.
var EndpointURLs = []string{
	"https://www.smzdm.com/homepage/json_more?p=1",
	"https://www.smzdm.com/homepage/json_more?p=2",
	"https://www.smzdm.com/homepage/json_more?p=3",
}

// feedEnvelope is the JSON shell around the goods list.
type feedEnvelope struct {
	Suc      int    `json:"suc"`
	ErrorMsg string `json:"error_msg"`
	Data     struct {
		GoodsList []extractor.GoodsRecord `json:"goods_list"`
	} `json:"data"`
}

// TokenSource supplies the cookies attached to feed requests and lets
// the client force a refresh when the feed rejects them. Satisfied by
// *session.Cache.
type TokenSource interface {
	GetOrRefresh(ctx context.Context) models.TokenSet
	Refresh(ctx context.Context) models.TokenSet
}

// Client fetches and extracts deal items. The zero value is not usable;
// construct with New.
type Client struct {
	httpClient *http.Client
	tokens     TokenSource
	extractor  *extractor.Extractor
	limiter    *rate.Limiter
	endpoints  []string

	// backoff is a seam so tests don't sit through real sleeps.
	backoff func(attempt int) time.Duration
}

// New returns a client fetching the standard endpoints with tokens from
// the given session cache. Requests are paced to one per second across
// endpoints so a run never hammers the feed.
func New(tokens TokenSource) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		tokens:     tokens,
		extractor:  extractor.New(),
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		endpoints:  EndpointURLs,
		backoff:    linearBackoff,
	}
}

// linearBackoff waits 2s after the first failed attempt, 4s after the
// second, and so on.
func linearBackoff(attempt int) time.Duration {
	return time.Duration(2*attempt) * time.Second
}

// FetchAll fetches every endpoint in order and returns the combined raw
// item list. Individual endpoint failures cost only that endpoint's
// items; FetchAll itself fails only when the context is done.
func (c *Client) FetchAll(ctx context.Context) ([]models.DealItem, error) {
	var all []models.DealItem
	for _, endpoint := range c.endpoints {
		if err := c.limiter.Wait(ctx); err != nil {
			return all, fmt.Errorf("fetch cancelled: %w", err)
		}
		items := c.fetchOne(ctx, endpoint)
		slog.Info("Fetched endpoint", "url", endpoint, "items", len(items))
		all = append(all, items...)
	}
	return all, nil
}

// fetchOne fetches a single endpoint with up to MaxRetry attempts. It
// never fails: when the budget runs out the endpoint simply contributes
// no items.
func (c *Client) fetchOne(ctx context.Context, endpoint string) []models.DealItem {
	for attempt := 1; attempt <= MaxRetry; attempt++ {
		items, done, retryNow := c.attempt(ctx, endpoint)
		if done || len(items) > 0 {
			return items
		}
		if attempt == MaxRetry {
			break
		}
		if retryNow {
			// Bad status codes retry immediately; waiting won't change
			// what the server thinks of the request.
			continue
		}
		wait := c.backoff(attempt)
		slog.Info("Retrying endpoint", "url", endpoint, "attempt", attempt, "wait", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
	slog.Warn("Endpoint attempts exhausted", "url", endpoint)
	return nil
}

// attempt performs one request/extract cycle. done reports a successful
// structured response, whose result is final even when it holds zero
// items; retryNow reports a status-code rejection, which skips the
// backoff sleep.
func (c *Client) attempt(ctx context.Context, endpoint string) (items []models.DealItem, done, retryNow bool) {
	tokens := c.tokens.GetOrRefresh(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Error("Failed to build feed request", "url", endpoint, "error", err)
		return nil, false, false
	}
	req.Header.Set("User-Agent", util.RandomUserAgent())
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", extractor.FeedOrigin+"/")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	for name, value := range tokens.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("Feed request failed", "url", endpoint, "error", err)
		return nil, false, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Feed returned bad status", "url", endpoint, "status", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.tokens.Refresh(ctx)
		}
		return nil, false, true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Failed to read feed body", "url", endpoint, "error", err)
		return nil, false, false
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var env feedEnvelope
		if err := json.Unmarshal(body, &env); err == nil && env.Suc == 1 {
			return c.extractor.ParseStructured(env.Data.GoodsList), true, false
		} else if err != nil {
			slog.Warn("Feed body is not valid JSON, trying HTML extraction", "url", endpoint, "error", err)
		} else {
			slog.Warn("Feed reported failure", "url", endpoint, "error_msg", env.ErrorMsg)
		}
		// The feed rejected this token set one way or another.
		c.tokens.Refresh(ctx)
		return c.scrapeBody(endpoint, body), false, false
	}

	// Non-JSON content type: the feed served a plain page, probably an
	// anti-bot interstitial. Full fallback, placeholders included.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("Failed to parse feed body as HTML", "url", endpoint, "error", err)
		return nil, false, false
	}
	return c.extractor.ParseHTML(doc), false, false
}

// scrapeBody runs the genuine HTML extraction stages over a body that
// claimed to be JSON but wasn't usable. No placeholder synthesis here: a
// feed error response must not turn into fake deals.
func (c *Client) scrapeBody(endpoint string, body []byte) []models.DealItem {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("Failed to parse feed body as HTML", "url", endpoint, "error", err)
		return nil
	}
	return c.extractor.ScrapeHTML(doc)
}
