// Package extractor turns raw upstream payloads into normalized DealItems.
// The structured JSON path is the primary one; the HTML path is a
// progressively looser fallback that ends in synthesized placeholder data
// so the rest of the pipeline always has input to run against. Synthesized
// records are identifiable by ID prefix and logged loudly.
package extractor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
	"github.com/pauljones0/zdm-deals-bot/internal/util"
)

// FeedOrigin is the absolute base used to resolve relative links scraped
// from fallback HTML.
const FeedOrigin = "https://www.smzdm.com"

const (
	// fallbackIDPrefix marks items extracted from HTML, whose IDs are
	// synthesized because the markup carries no stable identifier.
	fallbackIDPrefix = "fallback_"
	// placeholderIDPrefix marks fully fabricated continuity items.
	placeholderIDPrefix = "placeholder_"

	untitledPlaceholder = "未命名商品"
	priceUnknown        = "价格待定"
	merchantUnknown     = "未知商城"

	// minPatternMatches is how many non-trivial records a selector pattern
	// must yield before it is trusted.
	minPatternMatches = 3
	// maxLinkScanItems caps the last-resort anchor-text scan.
	maxLinkScanItems = 10
	// placeholderBatchSize is the fixed size of the synthetic batch.
	placeholderBatchSize = 3
)

// GoodsRecord is one raw entry of the feed's goods_list array.
type GoodsRecord struct {
	ArticleID      FlexString `json:"article_id"`
	ArticleTitle   string     `json:"article_title"`
	ArticleURL     string     `json:"article_url"`
	ArticlePrice   string     `json:"article_price"`
	ArticlePicURL  string     `json:"article_pic_url"`
	ArticleMall    string     `json:"article_mall"`
	ArticleVote    FlexString `json:"article_vote"`
	ArticleComment FlexString `json:"article_comment"`
	ArticleTime    string     `json:"article_time"`
}

// FlexString decodes a JSON field the upstream serves inconsistently as
// either a string or a number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("neither string nor number: %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// containerPatterns are tried in order against a fallback HTML document.
// The first pattern producing enough non-trivial records wins.
var containerPatterns = []string{
	"li.feed-row-wide",
	"div.feed-block",
	"div.z-feed-content",
	"li.z-feed-item",
	"div.list-item",
	"li.item",
	"article",
}

var titleSelectors = []string{
	"h5.feed-block-title a",
	".feed-block-title",
	"h2 a",
	"h3 a",
	".title a",
	".title",
	"a",
}

var priceSelectors = []string{
	".z-highlight",
	".feed-block-extras span",
	".price",
	".red",
}

var merchantSelectors = []string{
	".feed-block-extras a",
	".mall",
	".source",
}

// lazyImageAttrs are checked after src for lazy-loaded thumbnails.
var lazyImageAttrs = []string{"data-src", "data-original"}

type Extractor struct {
	validate *validator.Validate
	randn    func(n int) int
	now      func() time.Time
}

func New() *Extractor {
	return &Extractor{
		validate: validator.New(),
		randn:    rand.Intn,
		now:      time.Now,
	}
}

// ParseStructured converts the goods_list of a successful JSON response.
// Records missing any of id/title/url are malformed and skipped; so are
// records failing model validation. Neither is fatal.
func (e *Extractor) ParseStructured(goods []GoodsRecord) []models.DealItem {
	items := make([]models.DealItem, 0, len(goods))

	for _, g := range goods {
		id := strings.TrimSpace(string(g.ArticleID))
		title := strings.TrimSpace(g.ArticleTitle)
		link := strings.TrimSpace(g.ArticleURL)
		if id == "" || title == "" || link == "" {
			slog.Debug("Skipping malformed goods record", "id", id, "title", title)
			continue
		}

		item := models.DealItem{
			ID:          id,
			Title:       title,
			URL:         link,
			Price:       g.ArticlePrice,
			PictureURL:  g.ArticlePicURL,
			Merchant:    g.ArticleMall,
			Votes:       util.ParseCount(string(g.ArticleVote)),
			Comments:    util.ParseCount(string(g.ArticleComment)),
			PublishedAt: g.ArticleTime,
			Pushed:      false,
		}

		if err := e.validate.Struct(item); err != nil {
			slog.Warn("Dropping goods record failing validation", "id", id, "error", err)
			continue
		}
		items = append(items, item)
	}

	return items
}

// ParseHTML is the degraded extraction path for non-JSON responses. It
// tries selector patterns from most to least specific, then a bare link
// scan, and finally returns a fixed synthetic batch so the downstream
// stages still see data during an upstream outage.
func (e *Extractor) ParseHTML(doc *goquery.Document) []models.DealItem {
	if items := e.ScrapeHTML(doc); len(items) > 0 {
		return items
	}

	slog.Warn("HTML fallback found nothing; returning synthetic placeholder batch",
		"size", placeholderBatchSize)
	return e.placeholderBatch()
}

// ScrapeHTML runs only the genuine extraction stages (selector patterns,
// then the anchor-text scan) and returns empty when the document yields
// nothing. Used for bodies that claimed to be JSON but weren't usable:
// fabricating placeholder data out of an upstream error response would
// turn an API failure into fake deals.
func (e *Extractor) ScrapeHTML(doc *goquery.Document) []models.DealItem {
	for _, pattern := range containerPatterns {
		items := e.extractWithPattern(doc, pattern)
		if len(items) >= minPatternMatches {
			slog.Warn("HTML fallback extraction succeeded; items carry synthesized IDs and random engagement counts",
				"pattern", pattern, "count", len(items))
			return items
		}
	}

	if items := e.scanLongLinks(doc); len(items) > 0 {
		slog.Warn("HTML fallback degraded to anchor-text scan", "count", len(items))
		return items
	}
	return nil
}

func (e *Extractor) extractWithPattern(doc *goquery.Document, pattern string) []models.DealItem {
	var items []models.DealItem

	doc.Find(pattern).Each(func(_ int, s *goquery.Selection) {
		title := firstText(s, titleSelectors)
		if title == "" {
			title = untitledPlaceholder
		}
		if utf8.RuneCountInString(title) <= 5 || title == untitledPlaceholder {
			return
		}

		link := firstHref(s)
		if link == "" {
			return
		}
		link = resolveURL(link)

		price := firstText(s, priceSelectors)
		if price == "" {
			price = priceUnknown
		}
		merchant := firstText(s, merchantSelectors)
		if merchant == "" {
			merchant = merchantUnknown
		}

		// No upstream identifier exists in this path, and engagement
		// numbers are not scrapeable either. Random counts keep the
		// records structurally complete but they are low-confidence data.
		items = append(items, models.DealItem{
			ID:         e.syntheticID(),
			Title:      title,
			URL:        link,
			Price:      price,
			PictureURL: imageURL(s),
			Merchant:   merchant,
			Votes:      10 + e.randn(90),
			Comments:   5 + e.randn(45),
			Pushed:     false,
		})
	})

	return items
}

// scanLongLinks is the loosest extraction: any anchor with enough text to
// plausibly be a product title.
func (e *Extractor) scanLongLinks(doc *goquery.Document) []models.DealItem {
	var items []models.DealItem

	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if utf8.RuneCountInString(text) <= 10 {
			return true
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}

		items = append(items, models.DealItem{
			ID:       e.syntheticID(),
			Title:    text,
			URL:      resolveURL(href),
			Price:    priceUnknown,
			Merchant: merchantUnknown,
			Votes:    10 + e.randn(90),
			Comments: 5 + e.randn(45),
		})
		return len(items) < maxLinkScanItems
	})

	return items
}

// placeholderBatch fabricates a small fixed batch of clearly-labeled demo
// items. This keeps the pipeline exercisable when the upstream is fully
// unreachable; the placeholder_ ID prefix distinguishes them from real data.
func (e *Extractor) placeholderBatch() []models.DealItem {
	stores := []string{"京东", "天猫", "拼多多", "苏宁易购"}
	names := []string{
		"示例商品A - 限时优惠促销",
		"示例商品B - 历史低价好物",
		"示例商品C - 热门折扣推荐",
	}

	stamp := e.now().UnixNano()
	items := make([]models.DealItem, 0, placeholderBatchSize)
	for i := 0; i < placeholderBatchSize; i++ {
		items = append(items, models.DealItem{
			ID:       fmt.Sprintf("%s%d_%d", placeholderIDPrefix, stamp, i),
			Title:    names[i%len(names)],
			URL:      FeedOrigin + "/",
			Price:    fmt.Sprintf("¥%d.9", 9+e.randn(490)),
			Merchant: stores[e.randn(len(stores))],
			Votes:    10 + e.randn(90),
			Comments: 5 + e.randn(45),
		})
	}
	return items
}

func (e *Extractor) syntheticID() string {
	return fmt.Sprintf("%s%d_%s", fallbackIDPrefix, e.now().UnixNano(), uuid.NewString()[:8])
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		found := s.Find(sel).First()
		if found.Length() > 0 {
			if text := strings.TrimSpace(found.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstHref returns the element's own href or that of its first anchor.
func firstHref(s *goquery.Selection) string {
	if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if href, ok := s.Find("a").First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}

// imageURL checks src first, then the usual lazy-load attributes.
func imageURL(s *goquery.Selection) string {
	img := s.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return resolveURL(strings.TrimSpace(src))
	}
	for _, attr := range lazyImageAttrs {
		if src, ok := img.Attr(attr); ok && strings.TrimSpace(src) != "" {
			return resolveURL(strings.TrimSpace(src))
		}
	}
	return ""
}

// resolveURL makes scraped links absolute against the feed origin.
func resolveURL(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if strings.HasPrefix(link, "//") {
		return "https:" + link
	}
	base, err := url.Parse(FeedOrigin)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
