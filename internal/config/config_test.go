package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/greenplanet/storefront/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.New()

	require.Equal(t, "http://localhost:5000", cfg.GetBaseURL())
	require.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	require.Equal(t, 30*time.Minute, cfg.GetRefreshInterval())
	require.Equal(t, 10*time.Second, cfg.GetVerifyTimeout())
	require.Equal(t, "./data", cfg.GetDataFolder())
}

func TestFileOverridesWithEnvFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"baseURL: https://green-planet.example.com\nrefreshInterval: 15m\n",
	), 0o600))

	cfg, err := config.NewFromFile(path)
	require.NoError(t, err)

	require.Equal(t, "https://green-planet.example.com", cfg.GetBaseURL())
	require.Equal(t, 15*time.Minute, cfg.GetRefreshInterval())
	// Unset fields fall through to the defaults.
	require.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
}

func TestFileConfigErrors(t *testing.T) {
	_, err := config.NewFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("baseURL: [unterminated"), 0o600))
	_, err = config.NewFromFile(path)
	require.Error(t, err)
}
