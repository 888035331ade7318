package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/crew-bid-api/pkg/config"
)

func TestOptions(t *testing.T) {
	opts := Options(config.RedisConfig{
		Host:        "redis.internal",
		Port:        6380,
		DB:          2,
		PoolSize:    20,
		DialTimeout: time.Second,
		OpTimeout:   250 * time.Millisecond,
	})

	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 250*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.WriteTimeout)
	assert.Equal(t, "crew-bid-api", opts.ClientName)
}
