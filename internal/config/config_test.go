package config

import (
	"testing"
)

func setChannelEnv(t *testing.T) {
	t.Helper()
	t.Setenv("USE_EMAIL", "true")
	t.Setenv("EMAIL_HOST", "smtp.example.com")
	t.Setenv("EMAIL_PORT", "587")
	t.Setenv("EMAIL_USERNAME", "bot")
	t.Setenv("EMAIL_PASSWORD", "secret")
	t.Setenv("EMAIL_FROM", "bot@example.com")
	t.Setenv("EMAIL_TO", "a@example.com, b@example.com")
}

func TestLoad_Defaults(t *testing.T) {
	setChannelEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "database.db" {
		t.Errorf("DBPath = %q, want default database.db", cfg.DBPath)
	}
	if cfg.SessionCacheFile != "cookies.txt" {
		t.Errorf("SessionCacheFile = %q, want default cookies.txt", cfg.SessionCacheFile)
	}
	if cfg.MinVoteThreshold != 10 {
		t.Errorf("MinVoteThreshold = %d, want 10", cfg.MinVoteThreshold)
	}
	if cfg.MinCommentThrsh != 5 {
		t.Errorf("MinCommentThrsh = %d, want 5", cfg.MinCommentThrsh)
	}
	if len(cfg.Email.To) != 2 {
		t.Errorf("Email.To = %v, want 2 recipients", cfg.Email.To)
	}
}

func TestLoad_NoUsableChannel(t *testing.T) {
	t.Setenv("USE_EMAIL", "false")
	t.Setenv("USE_WECHAT", "false")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error when no channel is configured")
	}
}

func TestLoad_IncompleteEmailFallsBackToWechat(t *testing.T) {
	t.Setenv("USE_EMAIL", "true")
	t.Setenv("EMAIL_HOST", "smtp.example.com")
	// username/password/from/to missing
	t.Setenv("USE_WECHAT", "true")
	t.Setenv("WX_APP_TOKEN", "AT_token")
	t.Setenv("WX_TOPIC_IDS", "101, 102")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want incomplete email tolerated", err)
	}
	if len(cfg.WxPusher.TopicIDs) != 2 || cfg.WxPusher.TopicIDs[0] != 101 {
		t.Errorf("WxPusher.TopicIDs = %v, want [101 102]", cfg.WxPusher.TopicIDs)
	}
	if cfg.WxPusher.ContentType != 3 {
		t.Errorf("WxPusher.ContentType = %d, want HTML default 3", cfg.WxPusher.ContentType)
	}
}

func TestLoad_BadTopicIDs(t *testing.T) {
	t.Setenv("USE_WECHAT", "true")
	t.Setenv("WX_APP_TOKEN", "AT_token")
	t.Setenv("WX_TOPIC_IDS", "101, nope")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for malformed WX_TOPIC_IDS")
	}
}

func TestLoad_BadThreshold(t *testing.T) {
	setChannelEnv(t)
	t.Setenv("MIN_VOTE_THRESHOLD", "lots")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for malformed MIN_VOTE_THRESHOLD")
	}
}
