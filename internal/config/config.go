package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EmailConfig is the SMTP transport configuration.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Complete reports whether every field the SMTP dialog needs is present.
func (e EmailConfig) Complete() bool {
	return e.Host != "" && e.Username != "" && e.Password != "" && e.From != "" && len(e.To) > 0
}

// WxPusherConfig is the WxPusher webhook configuration.
type WxPusherConfig struct {
	AppToken    string
	ContentType int
	TopicIDs    []int
	UIDs        []string
}

// Complete reports whether the webhook can be used at all.
func (w WxPusherConfig) Complete() bool {
	return w.AppToken != ""
}

type Config struct {
	DBPath           string
	SessionCacheFile string
	UseEmail         bool
	UseWechat        bool
	Email            EmailConfig
	WxPusher         WxPusherConfig
	MinVoteThreshold int
	MinCommentThrsh  int
	LogLevel         string
}

// Load reads configuration from a .env file (if present) and the
// environment. It fails only on malformed values or when no usable
// notification channel is configured; that failure must happen before
// any network activity.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	} else {
		slog.Warn("No .env file found, using process environment")
	}

	cfg := &Config{
		DBPath:           envOrDefault("DB_PATH", "database.db"),
		SessionCacheFile: envOrDefault("SESSION_CACHE_FILE", "cookies.txt"),
		UseEmail:         envBool("USE_EMAIL", true),
		UseWechat:        envBool("USE_WECHAT", false),
		LogLevel:         envOrDefault("LOG_LEVEL", "INFO"),
	}

	var err error
	if cfg.MinVoteThreshold, err = envInt("MIN_VOTE_THRESHOLD", 10); err != nil {
		return nil, err
	}
	if cfg.MinCommentThrsh, err = envInt("MIN_COMMENT_THRESHOLD", 5); err != nil {
		return nil, err
	}

	emailPort, err := envInt("EMAIL_PORT", 587)
	if err != nil {
		return nil, err
	}
	cfg.Email = EmailConfig{
		Host:     os.Getenv("EMAIL_HOST"),
		Port:     emailPort,
		Username: os.Getenv("EMAIL_USERNAME"),
		Password: os.Getenv("EMAIL_PASSWORD"),
		From:     os.Getenv("EMAIL_FROM"),
		To:       splitList(os.Getenv("EMAIL_TO")),
	}

	contentType, err := envInt("WX_CONTENT_TYPE", 3) // 3 = HTML
	if err != nil {
		return nil, err
	}
	topicIDs, err := splitIntList(os.Getenv("WX_TOPIC_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid WX_TOPIC_IDS: %w", err)
	}
	cfg.WxPusher = WxPusherConfig{
		AppToken:    os.Getenv("WX_APP_TOKEN"),
		ContentType: contentType,
		TopicIDs:    topicIDs,
		UIDs:        splitList(os.Getenv("WX_UIDS")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate enforces that at least one enabled channel is fully configured.
// An enabled-but-incomplete channel is tolerated as long as the other one
// can still deliver.
func (c *Config) validate() error {
	emailUsable := c.UseEmail && c.Email.Complete()
	wechatUsable := c.UseWechat && c.WxPusher.Complete()

	if c.UseEmail && !c.Email.Complete() {
		slog.Error("Email channel enabled but configuration is incomplete")
	}
	if c.UseWechat && !c.WxPusher.Complete() {
		slog.Error("WxPusher channel enabled but app token is missing")
	}

	if !emailUsable && !wechatUsable {
		return fmt.Errorf("no usable notification channel configured")
	}
	return nil
}

// LogSummary writes a short configuration summary at startup, without
// secrets.
func (c *Config) LogSummary() {
	slog.Info("Configuration summary",
		"db_path", c.DBPath,
		"email_enabled", c.UseEmail,
		"email_recipients", len(c.Email.To),
		"wechat_enabled", c.UseWechat,
		"wechat_topics", len(c.WxPusher.TopicIDs),
		"wechat_uids", len(c.WxPusher.UIDs),
		"min_votes", c.MinVoteThreshold,
		"min_comments", c.MinCommentThrsh,
	)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitIntList(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
