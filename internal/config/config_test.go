package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultOwner, cfg.Relay.DefaultOwner)
	assert.Equal(t, DefaultChannel, cfg.Relay.DefaultChannel)
	assert.Equal(t, DefaultTelegramPoll, cfg.Telegram.PollTimeoutSeconds)
	assert.False(t, cfg.Telegram.Enabled())
	assert.False(t, cfg.GreenAPI.Enabled())
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9090"
api_key = "secret"

[telegram]
bot_token = "123:abc"
group_chat_id = -1001234567890

[greenapi]
id_instance = "1101000001"
api_token = "tok"

[relay]
default_owner = "backoffice"
dedup_ttl = "90m"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, int64(-1001234567890), cfg.Telegram.GroupChatID)
	assert.True(t, cfg.Telegram.Enabled())
	assert.True(t, cfg.GreenAPI.Enabled())
	assert.Equal(t, "backoffice", cfg.Relay.DefaultOwner)
	assert.Equal(t, 90*time.Minute, cfg.Relay.DedupWindow())
	assert.Equal(t, DefaultGreenAPIURL, cfg.GreenAPI.APIURL)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr = "), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	cfg := PostgresConfig{Host: "db", Port: 5433, User: "relay", Password: "p@ss", Database: "omnirelay", SSLMode: "disable"}
	assert.Equal(t, "postgres://relay:p%40ss@db:5433/omnirelay?sslmode=disable", cfg.DSN())
}

func TestDedupWindowFallsBack(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 24*time.Hour, RelayConfig{DedupTTL: "nope"}.DedupWindow())
	assert.Equal(t, 24*time.Hour, RelayConfig{}.DedupWindow())
}

func TestReconnectEvery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Minute, RelayConfig{}.ReconnectEvery())
	assert.Equal(t, 15*time.Second, RelayConfig{ReconnectInterval: "15s"}.ReconnectEvery())
	assert.Equal(t, time.Minute, RelayConfig{ReconnectInterval: "-5s"}.ReconnectEvery())
}

func TestMaxAssetBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(DefaultMaxAssetMB*1024*1024), StorageConfig{}.MaxAssetBytes())
	assert.Equal(t, int64(2*1024*1024), StorageConfig{MaxAssetMB: 2}.MaxAssetBytes())
}
