package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("RPC", "https://bsc-dataseed.example")
	t.Setenv("TOKEN", "0x55d398326f99059fF775485246999027B3197955")
	t.Setenv("API_BASE", "https://api.example")
	t.Setenv("CLIENT_ID", "client")
	t.Setenv("RECIPIENT", "0x2222222222222222222222222222222222222222")
	t.Setenv("RELAYER", "0x3333333333333333333333333333333333333333")
	t.Setenv("CAPTCHA_KEY", "key")
	t.Setenv("TURNSTILE_SITEKEY", "site")
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.PrivateKeys, 1)
	assert.Equal(t, DefaultMintCount, cfg.MintCount)
	assert.Equal(t, DefaultCaptchaPageURL, cfg.CaptchaPageURL)
	assert.Equal(t, DefaultCaptchaBaseURL, cfg.CaptchaBaseURL)
	assert.Equal(t, DefaultWatchAddresses, cfg.WatchAddresses)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, DefaultRPCTimeout, cfg.RPCTimeout)
	assert.Equal(t, DefaultApproveTimeout, cfg.ApproveTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	t.Setenv("MINT_COUNT", "4")
	t.Setenv("WATCH_ADDRESSES", " 0x1111111111111111111111111111111111111111 ,")
	t.Setenv("POLL_INTERVAL", "250")
	t.Setenv("CAPTCHA_TIMEOUT", "90s")
	t.Setenv("GAS_LIMIT", "120000")
	t.Setenv("RPC_TIMEOUT", "5s")
	t.Setenv("APPROVE_TIMEOUT", "60000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MintCount)
	assert.Equal(t, []string{"0x1111111111111111111111111111111111111111"}, cfg.WatchAddresses)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.CaptchaTimeout)
	assert.Equal(t, uint64(120000), cfg.GasLimit)
	assert.Equal(t, 5*time.Second, cfg.RPCTimeout)
	assert.Equal(t, time.Minute, cfg.ApproveTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLIENT_ID=from-dotenv\n"), 0o600))
	t.Setenv("CLIENT_ID", "")
	os.Unsetenv("CLIENT_ID")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.ClientID)
}

func TestLoadMalformed(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	t.Setenv("MINT_COUNT", "ten")
	t.Setenv("POLL_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINT_COUNT")
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
}

func TestLoadRejectsNegativeGasLimit(t *testing.T) {
	t.Chdir(t.TempDir())
	setRequired(t)
	t.Setenv("GAS_LIMIT", "-1")

	cfg, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GAS_LIMIT")
	assert.Zero(t, cfg.GasLimit)
}

func TestValidateReportsEveryField(t *testing.T) {
	err := Config{Concurrency: 3}.Validate()
	require.Error(t, err)

	for _, name := range []string{"PRIVATE_KEY", "RPC", "API_BASE", "CLIENT_ID", "CAPTCHA_KEY", "TURNSTILE_SITEKEY", "TOKEN", "RECIPIENT", "RELAYER"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestParseKeys(t *testing.T) {
	input := strings.Join([]string{
		"# wallets",
		"0xaaa",
		"",
		"bbb",
		"  0xccc  ",
	}, "\n")

	keys, skipped, err := ParseKeys(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"0xaaa", "0xccc"}, keys)
	assert.Equal(t, []int{4}, skipped)
}

func TestLoadKeysFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	setRequired(t)
	path := filepath.Join(dir, "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte("0x01\n0x02\nnope\n"), 0o600))
	t.Setenv("PRIVATE_KEYS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0x02"}, cfg.PrivateKeys)
	assert.Equal(t, []int{3}, cfg.SkippedKeyLines)
}
