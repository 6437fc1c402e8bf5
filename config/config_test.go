package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Prover.Timeout)
	assert.Equal(t, 16, cfg.Poller.Concurrency)
	assert.Equal(t,
		"12225244877405938440550617226633545800169987994542863481319183303809567487227",
		cfg.Signer.PubKeyX)
	assert.Empty(t, cfg.Auth.Users)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9000
prover:
  base_url: http://prover.local/
  timeout: 2s
signer:
  pubkey_x: "255"
  pubkey_y: "0x00ff"
auth:
  users:
    - token: "TokenA"
      username: "Alice"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("LEADERBOARD_POLLER_CONCURRENCY", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://prover.local", cfg.Prover.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Prover.Timeout)
	assert.Equal(t, 3, cfg.Poller.Concurrency)
	assert.Equal(t, "255", cfg.Signer.PubKeyX)
	assert.Equal(t, "255", cfg.Signer.PubKeyY)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, AuthUser{Token: "TokenA", Username: "Alice"}, cfg.Auth.Users[0])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNormalizeFieldElement(t *testing.T) {
	for in, want := range map[string]string{
		"0x1b073e4eede939876ce1deb7491d5d3bf212ba6b574c1c4658b0d72c467af4fb": "12225244877405938440550617226633545800169987994542863481319183303809567487227",
		"0x0":  "0",
		"0X10": "16",
		" 42 ": "42",
	} {
		got, err := NormalizeFieldElement(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "0xzz", "-1", "12ab"} {
		_, err := NormalizeFieldElement(bad)
		assert.Error(t, err, bad)
	}
}
