package cache

import (
	"fmt"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id interface{}) string {
	return fmt.Sprintf("%s:%v", prefix, id)
}
