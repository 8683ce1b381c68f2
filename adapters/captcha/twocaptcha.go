package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/ports"
)

const (
	// DefaultBaseURL is the public 2captcha endpoint
	DefaultBaseURL = "http://2captcha.com"
	// DefaultPollInterval is the delay between result polls
	DefaultPollInterval = 5 * time.Second
	// DefaultTimeout bounds a whole solve
	DefaultTimeout = 3 * time.Minute

	notReady = "CAPCHA_NOT_READY"
)

// Config configures the 2captcha client
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	Timeout      time.Duration
	HTTPTimeout  time.Duration
}

type apiResponse struct {
	Status  int             `json:"status"`
	Request json.RawMessage `json:"request"`
}

// text returns the request field, which the proxy sends as string or number
func (r apiResponse) text() string {
	var s string
	if err := json.Unmarshal(r.Request, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(r.Request, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return string(r.Request)
}

// TwoCaptcha solves Cloudflare Turnstile challenges through a 2captcha compatible proxy
type TwoCaptcha struct {
	client       *resty.Client
	apiKey       string
	pollInterval time.Duration
	timeout      time.Duration
	logger       *slog.Logger
}

// NewTwoCaptcha creates a new solver
func NewTwoCaptcha(cfg Config, logger *slog.Logger) ports.CaptchaSolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().SetBaseURL(cfg.BaseURL)
	if cfg.HTTPTimeout > 0 {
		client.SetTimeout(cfg.HTTPTimeout)
	}

	return &TwoCaptcha{
		client:       client,
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		logger:       logger,
	}
}

// Solve submits a turnstile job and polls until the proxy has a token
func (s *TwoCaptcha) Solve(ctx context.Context, siteKey, pageURL string) (core.CaptchaToken, error) {
	solveCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.submit(solveCtx, siteKey, pageURL)
	if err != nil {
		return core.CaptchaToken{}, s.mapErr(ctx, err)
	}
	s.logger.Debug("captcha job submitted", "job", id)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-solveCtx.Done():
			return core.CaptchaToken{}, s.mapErr(ctx, solveCtx.Err())
		case <-ticker.C:
		}

		token, ready, err := s.poll(solveCtx, id)
		if err != nil {
			return core.CaptchaToken{}, s.mapErr(ctx, err)
		}
		if ready {
			return core.CaptchaToken{Value: token, SolvedAt: time.Now()}, nil
		}
		s.logger.Debug("captcha not ready", "job", id)
	}
}

// mapErr reports ErrCaptchaTimeout when the solve deadline, not the caller, ended the wait
func (s *TwoCaptcha) mapErr(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no solution after %s: %w", s.timeout, core.ErrCaptchaTimeout)
	}
	return err
}

func (s *TwoCaptcha) submit(ctx context.Context, siteKey, pageURL string) (string, error) {
	out, err := s.get(ctx, "/in.php", map[string]string{
		"key":     s.apiKey,
		"method":  "turnstile",
		"sitekey": siteKey,
		"pageurl": pageURL,
		"json":    "1",
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit captcha: %w", err)
	}
	if out.Status != 1 {
		return "", fmt.Errorf("submit answered %s: %w", out.text(), core.ErrCaptchaRejected)
	}
	return out.text(), nil
}

func (s *TwoCaptcha) poll(ctx context.Context, id string) (string, bool, error) {
	out, err := s.get(ctx, "/res.php", map[string]string{
		"key":    s.apiKey,
		"action": "get",
		"id":     id,
		"json":   "1",
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to poll captcha: %w", err)
	}
	if out.Status == 1 {
		return out.text(), true, nil
	}
	if text := out.text(); text != notReady {
		return "", false, fmt.Errorf("poll answered %s: %w", text, core.ErrCaptchaRejected)
	}
	return "", false, nil
}

func (s *TwoCaptcha) get(ctx context.Context, path string, params map[string]string) (apiResponse, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return apiResponse{}, err
	}
	if resp.IsError() {
		return apiResponse{}, fmt.Errorf("captcha proxy returned status %d", resp.StatusCode())
	}

	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return apiResponse{}, fmt.Errorf("failed to decode captcha response: %w", err)
	}
	return out, nil
}
