package cache

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestRedisCacheCloseIsIdempotent(t *testing.T) {
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "mt5hub")

	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}
