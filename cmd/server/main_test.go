package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plainhr/plain/internal/config"
)

func TestRedisNamespace(t *testing.T) {
	assert.True(t, strings.HasSuffix(redisNamespace, ":"), "Пространство имён отделяется двоеточием")
}

func TestNewRedisUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := newRedis(ctx, cfg)
	require.Error(t, err, "Недоступный Redis должен давать ошибку")
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
