package app

import (
	"strings"

	"github.com/charlesng35/feedsync/internal/store"
)

// RedisStoreConfig converts the application cache configuration into the store package representation.
func (c CacheConfig) RedisStoreConfig() store.RedisConfig {
	return store.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}
