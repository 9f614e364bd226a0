package configs

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIVE_PUBLISHER", "WebSocket")

	c, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if c.Publisher != PublisherWebsocket || c.PageStore != StoreMemory {
		t.Fatalf("config = %+v", c)
	}
	if c.PollingInterval != 3*time.Second || c.PollingTimeout != time.Minute {
		t.Fatalf("polling = %v / %v", c.PollingInterval, c.PollingTimeout)
	}
	if c.NeedsRedis() {
		t.Fatal("websocket with memory store should not need redis")
	}
	if c.TrustForwardedFor {
		t.Fatal("forwarded headers trusted by default")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{"missing publisher", map[string]string{}, "LIVE_PUBLISHER"},
		{"unknown publisher", map[string]string{"LIVE_PUBLISHER": "carrier-pigeon"}, "LIVE_PUBLISHER"},
		{"unknown store", map[string]string{"LIVE_PUBLISHER": "polling", "LIVE_PAGE_STORE": "mongo"}, "LIVE_PAGE_STORE"},
		{"bad interval", map[string]string{"LIVE_PUBLISHER": "polling", "LIVE_POLLING_INTERVAL_MS": "soon"}, "LIVE_POLLING_INTERVAL_MS"},
		{"zero timeout", map[string]string{"LIVE_PUBLISHER": "polling", "LIVE_POLLING_TIMEOUT_S": "0"}, "LIVE_POLLING_TIMEOUT_S"},
		{"bad proxy flag", map[string]string{"LIVE_PUBLISHER": "polling", "LIVE_TRUST_FORWARDED_FOR": "maybe"}, "LIVE_TRUST_FORWARDED_FOR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LIVE_PUBLISHER", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			var ce *ConfigurationError
			if !errors.As(err, &ce) || ce.Key != tc.key {
				t.Fatalf("err = %v, want ConfigurationError for %s", err, tc.key)
			}
		})
	}
}

func TestLoadConfigRedisAndPatterns(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIVE_PUBLISHER", "redis")
	t.Setenv("LIVE_EMBED_PATTERNS", "https://vimeo.com/*, ,https://*.example.org/*")
	c, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !c.NeedsRedis() || len(c.EmbedPatterns) != 2 {
		t.Fatalf("config = %+v", c)
	}
}
