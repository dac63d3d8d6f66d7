package redis

import (
	"context"
	"testing"
	"time"

	"TradeDeskPlatform/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := NewConfig()
	cfg.Addr = mr.Addr()

	client, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := NewConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = 1
	cfg.RetryInterval = 10 * time.Millisecond

	_, err := Connect(context.Background(), cfg)
	assert.Error(t, err)
}

func TestHealthCheck_NotInitialized(t *testing.T) {
	c := &Client{}
	assert.Error(t, c.HealthCheck(context.Background()))
	assert.NoError(t, c.Close())
}

func TestFromAppConfig(t *testing.T) {
	app := config.Default().Redis
	app.Addr = "cache:6379"
	app.RetryInterval = "250ms"

	cfg := FromAppConfig(app)
	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval)
}
