package db

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/sms-bridge/internal/config"
)

func TestOpen_Validation(t *testing.T) {
	_, err := Open("sqlite", config.DatabaseConfig{DSN: "x"})
	assert.Error(t, err)

	_, err = Open("mysql", config.DatabaseConfig{})
	assert.ErrorContains(t, err, "empty mysql DSN")
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(config.RedisConfig{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, rdb.Close())
}
