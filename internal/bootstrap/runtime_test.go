package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"chirp/internal/config"
	"chirp/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRuntime_SQLite(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := &config.Config{
		Env:          "test",
		DBDriver:     "sqlite",
		DBPath:       filepath.Join(t.TempDir(), "runtime.sqlite"),
		DBSchemaMode: "hybrid",
		RedisURL:     mr.Addr(),
	}

	rt, err := InitRuntime(cfg, Options{ApplySchema: true})
	require.NoError(t, err)
	require.NotNil(t, rt.Redis)
	assert.True(t, rt.DB.Migrator().HasTable(&models.Follow{}))

	require.NoError(t, rt.Close(context.Background()))
}

func TestInitRuntime_WithoutRedis(t *testing.T) {
	cfg := &config.Config{
		Env:      "test",
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "runtime.sqlite"),
		RedisURL: "127.0.0.1:1",
	}

	rt, err := InitRuntime(cfg, Options{SkipRedis: true})
	require.NoError(t, err)
	assert.Nil(t, rt.Redis)
	assert.False(t, rt.DB.Migrator().HasTable(&models.Follow{}))
	require.NoError(t, rt.Close(context.Background()))
}

func TestInitRuntime_BadDriver(t *testing.T) {
	_, err := InitRuntime(&config.Config{DBDriver: "mysql"}, Options{})
	assert.Error(t, err)
}
