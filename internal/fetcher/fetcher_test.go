package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
)

type stubTokens struct {
	refreshes int
}

func (s *stubTokens) GetOrRefresh(context.Context) models.TokenSet {
	return models.TokenSet{
		Cookies:     map[string]string{"device_id": "test-device"},
		LastUpdated: 1,
	}
}

func (s *stubTokens) Refresh(context.Context) models.TokenSet {
	s.refreshes++
	return s.GetOrRefresh(context.Background())
}

// newTestClient points the client at a single test endpoint and strips
// the pacing and backoff delays out of the retry loop.
func newTestClient(serverURL string) (*Client, *stubTokens) {
	tokens := &stubTokens{}
	c := New(tokens)
	c.endpoints = []string{serverURL}
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	c.backoff = func(int) time.Duration { return 0 }
	return c, tokens
}

const goodsPayload = `{
  "suc": 1,
  "data": {
    "goods_list": [
      {"article_id": "100", "article_title": "机械键盘", "article_url": "https://www.smzdm.com/p/100", "article_price": "199元", "article_vote": "1.2k", "article_comment": "35"},
      {"article_id": 101, "article_title": "降噪耳机", "article_url": "https://www.smzdm.com/p/101", "article_price": "899元", "article_vote": "56", "article_comment": "12"}
    ]
  }
}`

func TestFetchAll_StructuredJSON(t *testing.T) {
	var gotCookie, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("device_id"); err == nil {
			gotCookie = ck.Value
		}
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, goodsPayload)
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL)
	items, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].ID != "100" || items[0].Votes != 1200 {
		t.Errorf("First item not parsed from structured path: %+v", items[0])
	}
	if items[1].ID != "101" {
		t.Errorf("Numeric article_id should decode as string, got %q", items[1].ID)
	}
	if gotCookie != "test-device" {
		t.Errorf("Session cookie not attached, got %q", gotCookie)
	}
	if !strings.Contains(gotUA, "Mozilla") {
		t.Errorf("Expected a browser user agent, got %q", gotUA)
	}
}

func TestFetchAll_EmptyGoodsListIsFinal(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"suc": 1, "data": {"goods_list": []}}`)
	}))
	defer server.Close()

	c, tokens := newTestClient(server.URL)
	items, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
	if requests != 1 {
		t.Errorf("A successful response with nothing in it must not be retried, got %d requests", requests)
	}
	if tokens.refreshes != 0 {
		t.Errorf("A successful response must not refresh tokens, got %d", tokens.refreshes)
	}
}

func TestFetchAll_FeedFailureReturnsEmpty(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"suc": 0, "error_msg": "访问受限"}`)
	}))
	defer server.Close()

	c, tokens := newTestClient(server.URL)
	items, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Persistent feed failure must yield no items, got %d", len(items))
	}
	if requests != MaxRetry {
		t.Errorf("Expected %d attempts, got %d", MaxRetry, requests)
	}
	if tokens.refreshes != MaxRetry {
		t.Errorf("Each rejected attempt should force a token refresh, got %d", tokens.refreshes)
	}
}

func TestFetchAll_BadStatusRefreshesTokens(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, goodsPayload)
	}))
	defer server.Close()

	c, tokens := newTestClient(server.URL)
	items, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected recovery on second attempt, got %d items", len(items))
	}
	if tokens.refreshes != 1 {
		t.Errorf("403 should trigger exactly one token refresh, got %d", tokens.refreshes)
	}
}

func TestFetchAll_HTMLFallback(t *testing.T) {
	page := `<html><body><ul>` +
		`<li class="feed-row-wide"><h5 class="feed-block-title"><a href="/p/1">超值商品甲测试条目一</a></h5><span class="z-highlight">99元</span></li>` +
		`<li class="feed-row-wide"><h5 class="feed-block-title"><a href="/p/2">超值商品乙测试条目二</a></h5><span class="z-highlight">199元</span></li>` +
		`<li class="feed-row-wide"><h5 class="feed-block-title"><a href="/p/3">超值商品丙测试条目三</a></h5><span class="z-highlight">299元</span></li>` +
		`</ul></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL)
	items, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 scraped items, got %d", len(items))
	}
	for _, item := range items {
		if !strings.HasPrefix(item.ID, "fallback_") {
			t.Errorf("Scraped item should carry a synthesized ID, got %q", item.ID)
		}
	}
	if items[0].URL != "https://www.smzdm.com/p/1" {
		t.Errorf("Relative link not resolved, got %q", items[0].URL)
	}
}

func TestFetchAll_JSONBodyWithScrapableMarkup(t *testing.T) {
	// Anti-bot pages sometimes keep the JSON content type while serving
	// markup. The genuine extraction stages still run over the body; the
	// placeholder batch must not.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `<html><body><p>请稍后再试</p></body></html>`)
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL)
	items, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Unusable JSON body must not fabricate items, got %d", len(items))
	}
}

func TestFetchAll_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, goodsPayload)
	}))
	defer server.Close()

	c, _ := newTestClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.FetchAll(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
}
