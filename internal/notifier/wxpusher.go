package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pauljones0/zdm-deals-bot/internal/config"
	"github.com/pauljones0/zdm-deals-bot/internal/extractor"
	"github.com/pauljones0/zdm-deals-bot/internal/util"
)

const (
	wxPusherEndpoint = "https://wxpusher.zjiecode.com/api/send/message"

	// wxSuccessCode is the application-level success code in the
	// response body. HTTP 200 alone does not mean delivery.
	wxSuccessCode = 1000

	// wxSummaryRunes caps the preview text WxPusher shows in the chat list.
	wxSummaryRunes = 99

	wxMaxAttempts = 3
)

// WxPusherNotifier delivers the digest through the WxPusher push API.
type WxPusherNotifier struct {
	cfg      config.WxPusherConfig
	client   *http.Client
	endpoint string
	attempts int
}

func NewWxPusher(cfg config.WxPusherConfig) *WxPusherNotifier {
	return &WxPusherNotifier{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: wxPusherEndpoint,
		attempts: wxMaxAttempts,
	}
}

func (n *WxPusherNotifier) Name() string { return "wxpusher" }

type wxPusherPayload struct {
	AppToken    string   `json:"appToken"`
	Content     string   `json:"content"`
	Summary     string   `json:"summary,omitempty"`
	ContentType int      `json:"contentType"`
	TopicIDs    []int    `json:"topicIds,omitempty"`
	UIDs        []string `json:"uids,omitempty"`
	URL         string   `json:"url,omitempty"`
	Title       string   `json:"title,omitempty"`
}

type wxPusherResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Notify pushes the digest. The transport is retried with backoff;
// delivery counts as successful only when the API answers HTTP 200 with
// the success code in the body.
func (n *WxPusherNotifier) Notify(ctx context.Context, subject, htmlBody string) error {
	payload := wxPusherPayload{
		AppToken:    n.cfg.AppToken,
		Content:     htmlBody,
		Summary:     truncateRunes(subject, wxSummaryRunes),
		ContentType: n.cfg.ContentType,
		TopicIDs:    n.cfg.TopicIDs,
		UIDs:        n.cfg.UIDs,
		URL:         extractor.FeedOrigin + "/",
		Title:       subject,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode wxpusher payload: %w", err)
	}

	err = util.RetryWithBackoff(ctx, n.attempts, func(attempt int) error {
		if attempt > 1 {
			slog.Info("Retrying WxPusher delivery", "attempt", attempt)
		}
		return n.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("wxpusher delivery: %w", err)
	}
	slog.Info("WxPusher digest sent", "topics", len(n.cfg.TopicIDs), "uids", len(n.cfg.UIDs))
	return nil
}

func (n *WxPusherNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s: %s", resp.Status, respBody)
	}

	var parsed wxPusherResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("unexpected response body: %s", respBody)
	}
	if parsed.Code != wxSuccessCode {
		return fmt.Errorf("api code %d: %s", parsed.Code, parsed.Msg)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
