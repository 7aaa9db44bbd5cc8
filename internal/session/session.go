// Package session maintains the token set attached to feed requests: a
// file-backed cookie cache with a fixed TTL, refreshed from a real browser
// when one can run and degrading to placeholder or empty tokens when it
// can't. Every path returns a usable (possibly empty) token set; nothing
// here is allowed to fail the fetch.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
)

// TTL is how long a token set stays valid before a refresh is attempted.
const TTL = time.Hour

// browserTimeout bounds a single chromedp cookie harvest.
const browserTimeout = 60 * time.Second

// Cache holds the current token set and its side-file persistence. It is
// an explicit value handed to the fetcher, not a package singleton.
type Cache struct {
	mu     sync.Mutex
	tokens models.TokenSet
	file   string
	origin string

	// seams for tests
	now            func() time.Time
	headless       func() bool
	browserCookies func(ctx context.Context, origin string) (map[string]string, error)
}

// New returns a cache persisting to file and refreshing against origin.
func New(file, origin string) *Cache {
	return &Cache{
		file:           file,
		origin:         origin,
		now:            time.Now,
		headless:       detectHeadless,
		browserCookies: harvestBrowserCookies,
	}
}

// GetOrRefresh returns the current token set, refreshing it first if it is
// missing or older than TTL. It never fails: any refresh step that errors
// falls through to the next, and the worst case is an empty token set.
func (c *Cache) GetOrRefresh(ctx context.Context) models.TokenSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.tokens.Empty() && c.tokens.Age(c.now()) <= TTL {
		return c.tokens
	}
	c.refreshLocked(ctx, false)
	return c.tokens
}

// Refresh forces a refresh regardless of the current set's age, for when
// the feed rejects the tokens we hold. The side-file cache is skipped,
// since whatever it holds just got rejected too. Like GetOrRefresh it
// never fails.
func (c *Cache) Refresh(ctx context.Context) models.TokenSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refreshLocked(ctx, true)
	return c.tokens
}

// Clear drops the in-memory token set and deletes the side file. Deletion
// errors are logged and swallowed.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens = models.TokenSet{}
	if err := os.Remove(c.file); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to delete session cache file", "file", c.file, "error", err)
	}
}

func (c *Cache) refreshLocked(ctx context.Context, skipFile bool) {
	now := c.now()

	// Headless/CI execution: no browser will run here, and a placeholder
	// set would only mislead. Empty tokens, stamped so we don't re-detect
	// every request.
	if c.headless() {
		slog.Info("Headless environment detected, skipping browser session refresh")
		c.tokens = models.TokenSet{Cookies: map[string]string{}, LastUpdated: now.Unix()}
		return
	}

	// Side-file cache, accepted only while its own timestamp is in TTL.
	if !skipFile {
		if cached, err := c.loadFile(); err == nil {
			if cached.Age(now) <= TTL && !cached.Empty() {
				slog.Info("Loaded valid session tokens from cache file", "file", c.file)
				c.tokens = cached
				return
			}
		} else if !os.IsNotExist(err) {
			slog.Warn("Failed to read session cache file", "file", c.file, "error", err)
		}
	}

	// Real refresh: drive a browser at the feed origin and harvest its
	// cookies.
	if cookies, err := c.browserCookies(ctx, c.origin); err == nil && len(cookies) > 0 {
		slog.Info("Harvested session tokens from browser", "count", len(cookies))
		c.tokens = models.TokenSet{Cookies: cookies, LastUpdated: now.Unix()}
		c.persist()
		return
	} else if err != nil {
		slog.Warn("Browser session refresh failed, degrading to placeholder tokens", "error", err)
	}

	// Degraded mode: synthesize a minimal placeholder set. This is not a
	// simulation of real authentication; the feed accepts anonymous
	// requests and these values only keep the cookie jar non-empty.
	c.tokens = models.TokenSet{
		Cookies: map[string]string{
			"device_id": fmt.Sprintf("%d", now.Unix()),
			"session":   fmt.Sprintf("session_%d", now.Unix()),
		},
		LastUpdated: now.Unix(),
	}
	slog.Warn("Using synthesized placeholder session tokens")
	c.persist()
}

func (c *Cache) loadFile() (models.TokenSet, error) {
	data, err := os.ReadFile(c.file)
	if err != nil {
		return models.TokenSet{}, err
	}
	var ts models.TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return models.TokenSet{}, fmt.Errorf("corrupt session cache: %w", err)
	}
	return ts, nil
}

// persist writes the current token set to the side file. Write errors are
// logged and swallowed; a missing cache only costs a refresh next run.
func (c *Cache) persist() {
	data, err := json.MarshalIndent(c.tokens, "", "  ")
	if err != nil {
		slog.Warn("Failed to encode session tokens", "error", err)
		return
	}
	if err := os.WriteFile(c.file, data, 0o600); err != nil {
		slog.Warn("Failed to write session cache file", "file", c.file, "error", err)
	}
}

// detectHeadless reports whether this process runs somewhere no browser
// session can be established: CI runners, or a Linux host with no display.
func detectHeadless() bool {
	if v := os.Getenv("CI"); v != "" && v != "false" {
		return true
	}
	if os.Getenv("GITHUB_ACTIONS") != "" {
		return true
	}
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" {
		return true
	}
	return false
}

// harvestBrowserCookies navigates headless Chrome to the feed origin and
// collects whatever cookies the site sets for a fresh visitor.
func harvestBrowserCookies(ctx context.Context, origin string) (map[string]string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, browserTimeout)
	defer cancelTimeout()

	cookies := make(map[string]string)
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(origin),
		chromedp.Sleep(2*time.Second), // let the anti-bot JS set its cookies
		chromedp.ActionFunc(func(ctx context.Context) error {
			cs, err := storage.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, ck := range cs {
				cookies[ck.Name] = ck.Value
			}
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp cookie harvest: %w", err)
	}
	return cookies, nil
}
