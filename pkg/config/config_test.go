package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
auth:
  secret: s3cret
runtime:
  bot_ids: [1, 2]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Environment != "dev" || c.Server.Port != 8080 || c.Notify.Backend != "log" {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if c.HeartbeatTimeout() != 30*time.Second || c.ReportDelay() != 5*time.Second || c.MessageBatchDelay() != 5*time.Second {
		t.Fatalf("unexpected durations")
	}
	if c.Kafka.RequiredAcks != -1 || c.Storage.History != "memory" {
		t.Fatalf("unexpected defaults: acks=%d history=%s", c.Kafka.RequiredAcks, c.Storage.History)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing secret", "runtime:\n  bot_ids: [1]\n", "auth.secret"},
		{"empty roster", "auth:\n  secret: x\n", "bot_ids"},
		{"duplicate id", "auth:\n  secret: x\nruntime:\n  bot_ids: [1, 1]\n", "duplicate"},
		{"bad backend", minimal + "notify:\n  backend: telegram\n", "notify.backend"},
		{"kafka without brokers", minimal + "notify:\n  backend: kafka\n", "kafka.brokers"},
		{"webhook without url", minimal + "notify:\n  backend: webhook\n", "webhook_url"},
		{"bad history", minimal + "storage:\n  history: sqlite\n", "storage.history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestChannelsAdminFirst(t *testing.T) {
	c, err := Parse([]byte(minimal + "notify:\n  admin_chat_id: 10\n  forward_chat_ids: [20, 30]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := c.Channels()
	if len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Fatalf("channels = %v", got)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MT5_SECRET_KEY", "from-env")
	t.Setenv("BOT_IDS", "3, 4,5")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Auth.Secret != "from-env" {
		t.Fatalf("secret = %q", c.Auth.Secret)
	}
	if len(c.Runtime.BotIDs) != 3 || c.Runtime.BotIDs[2] != 5 {
		t.Fatalf("bot ids = %v", c.Runtime.BotIDs)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}

	t.Setenv("BOT_IDS", "1,x")
	if _, err := LoadWithEnv(path); err == nil {
		t.Fatalf("expected BOT_IDS error")
	}
}
