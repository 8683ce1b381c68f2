package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	DefaultMintCount      = 10
	DefaultCaptchaPageURL = "https://www.b402.ai/experience-b402"
	DefaultCaptchaBaseURL = "http://2captcha.com"
	DefaultCaptchaTimeout = 3 * time.Minute
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultConcurrency    = 3
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultRPCTimeout     = 15 * time.Second
	DefaultApproveTimeout = 3 * time.Minute
)

// DefaultWatchAddresses are the known distribution sources
var DefaultWatchAddresses = []string{
	"0x39dcdd14a0c40e19cd8c892fd00e9e7963cd49d3",
	"0xafcD15f17D042eE3dB94CdF6530A97bf32A74E02",
}

// Config is centralized process configuration.
type Config struct {
	PrivateKeys []string
	KeysFile    string
	// SkippedKeyLines lists key file lines ignored for lacking the 0x prefix
	SkippedKeyLines []int

	MintCount int
	RPC       string
	Token     string
	APIBase   string
	ClientID  string
	Recipient string
	Relayer   string

	CaptchaKey       string
	TurnstileSiteKey string
	CaptchaPageURL   string
	CaptchaBaseURL   string
	CaptchaTimeout   time.Duration

	GasPriceGwei string
	GasLimit     uint64
	// RPCTimeout bounds every node call, ApproveTimeout the approval up to its receipt
	RPCTimeout     time.Duration
	ApproveTimeout time.Duration

	WatchAddresses []string
	PollInterval   time.Duration
	Concurrency    int
	HTTPTimeout    time.Duration

	RedisURL    string
	StatusAddr  string
	StatusToken string
	LogLevel    slog.Level
}

// Load reads .env when present, then the process environment
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		KeysFile:         env("PRIVATE_KEYS_FILE", ""),
		RPC:              env("RPC", ""),
		Token:            env("TOKEN", ""),
		APIBase:          env("API_BASE", ""),
		ClientID:         env("CLIENT_ID", ""),
		Recipient:        env("RECIPIENT", ""),
		Relayer:          env("RELAYER", ""),
		CaptchaKey:       env("CAPTCHA_KEY", ""),
		TurnstileSiteKey: env("TURNSTILE_SITEKEY", ""),
		CaptchaPageURL:   env("CAPTCHA_PAGE_URL", DefaultCaptchaPageURL),
		CaptchaBaseURL:   env("CAPTCHA_BASE_URL", DefaultCaptchaBaseURL),
		GasPriceGwei:     env("GAS_PRICE_GWEI", ""),
		RedisURL:         env("REDIS_URL", ""),
		StatusAddr:       env("STATUS_ADDR", ""),
		StatusToken:      env("STATUS_TOKEN", ""),
		WatchAddresses:   envList("WATCH_ADDRESSES", DefaultWatchAddresses),
	}

	cfg.MintCount = envInt("MINT_COUNT", DefaultMintCount, &errs)
	cfg.Concurrency = envInt("CONCURRENCY", DefaultConcurrency, &errs)
	cfg.GasLimit = envUint("GAS_LIMIT", 0, &errs)
	cfg.CaptchaTimeout = envDuration("CAPTCHA_TIMEOUT", DefaultCaptchaTimeout, &errs)
	cfg.PollInterval = envDuration("POLL_INTERVAL", DefaultPollInterval, &errs)
	cfg.HTTPTimeout = envDuration("HTTP_TIMEOUT", DefaultHTTPTimeout, &errs)
	cfg.RPCTimeout = envDuration("RPC_TIMEOUT", DefaultRPCTimeout, &errs)
	cfg.ApproveTimeout = envDuration("APPROVE_TIMEOUT", DefaultApproveTimeout, &errs)

	if raw := env("LOG_LEVEL", "info"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if cfg.KeysFile != "" {
		keys, skipped, err := ReadKeysFile(cfg.KeysFile)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.PrivateKeys, cfg.SkippedKeyLines = keys, skipped
	} else if pk := env("PRIVATE_KEY", ""); pk != "" {
		cfg.PrivateKeys = []string{pk}
	}

	return cfg, errors.Join(errs...)
}

// Validate reports every missing or malformed required setting
func (c Config) Validate() error {
	var errs []error

	if len(c.PrivateKeys) == 0 {
		errs = append(errs, errors.New("PRIVATE_KEY or PRIVATE_KEYS_FILE is required"))
	}
	for name, value := range map[string]string{
		"RPC":               c.RPC,
		"API_BASE":          c.APIBase,
		"CLIENT_ID":         c.ClientID,
		"CAPTCHA_KEY":       c.CaptchaKey,
		"TURNSTILE_SITEKEY": c.TurnstileSiteKey,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	for name, value := range map[string]string{
		"TOKEN":     c.Token,
		"RECIPIENT": c.Recipient,
		"RELAYER":   c.Relayer,
	} {
		if !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s must be an address, got %q", name, value))
		}
	}
	for _, a := range c.WatchAddresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Errorf("WATCH_ADDRESSES entry %q is not an address", a))
		}
	}
	if c.MintCount < 0 {
		errs = append(errs, errors.New("MINT_COUNT must not be negative"))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, errors.New("CONCURRENCY must be positive"))
	}

	return errors.Join(errs...)
}

// ReadKeysFile reads one private key per line, see ParseKeys
func ReadKeysFile(path string) ([]string, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open keys file: %w", err)
	}
	defer f.Close()

	return ParseKeys(f)
}

// ParseKeys returns the keys of a key list. Blank lines and # comments are
// ignored; keys without the 0x prefix are skipped and their line numbers returned.
func ParseKeys(r io.Reader) ([]string, []int, error) {
	var keys []string
	var skipped []int

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if !strings.HasPrefix(text, "0x") {
			skipped = append(skipped, line)
			continue
		}
		keys = append(keys, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read keys: %w", err)
	}
	return keys, skipped, nil
}

func env(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envList(name string, fallback []string) []string {
	var out []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func envInt(name string, fallback int, errs *[]error) int {
	raw := env(name, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return fallback
	}
	return v
}

func envUint(name string, fallback uint64, errs *[]error) uint64 {
	raw := env(name, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: must be a non-negative integer: %w", name, err))
		return fallback
	}
	return v
}

// envDuration accepts Go durations and bare numbers of milliseconds
func envDuration(name string, fallback time.Duration, errs *[]error) time.Duration {
	raw := env(name, "")
	if raw == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", name, err))
		return fallback
	}
	return d
}
