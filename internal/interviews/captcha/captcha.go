// Package captcha verifies reCAPTCHA v3 tokens submitted with sign-up requests.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	e "github.com/gartstein/interviews/internal/interviews/errors"
)

const (
	DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	DefaultThreshold = 0.1
)

type Config struct {
	Secret    string
	VerifyURL string
	Threshold float64
	// Required rejects sign-ups when no secret is configured instead of
	// skipping verification.
	Required bool
}

// Result is the siteverify response body.
type Result struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

type Verifier struct {
	cfg        Config
	client     *http.Client
	logger     *zap.Logger
	maxRetries uint64
}

func NewVerifier(cfg Config, client *http.Client, logger *zap.Logger) *Verifier {
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{
		cfg:        cfg,
		client:     client,
		logger:     logger.Named("captcha"),
		maxRetries: 2,
	}
}

// Enabled reports whether tokens are checked at all.
func (v *Verifier) Enabled() bool {
	return v.cfg.Secret != "" || v.cfg.Required
}

// Verify checks token against the siteverify endpoint. A low score yields
// ErrBotDetected; a failed or unreachable verification yields
// ErrVerificationFailed.
func (v *Verifier) Verify(ctx context.Context, token string) (*Result, error) {
	if !v.Enabled() {
		return &Result{Success: true, Score: 1}, nil
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: missing captcha token", e.ErrInvalidInput)
	}
	if v.cfg.Secret == "" {
		v.logger.Error("Captcha secret is not configured")
		return nil, fmt.Errorf("%w: missing secret key", e.ErrVerificationFailed)
	}

	var result Result
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), v.maxRetries), ctx)
	err := backoff.Retry(func() error {
		res, err := v.post(ctx, token)
		if err != nil {
			return err
		}
		result = *res
		return nil
	}, policy)
	if err != nil {
		v.logger.Error("Captcha verification request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", e.ErrVerificationFailed, err)
	}

	if !result.Success {
		v.logger.Error("Captcha validation failed", zap.Strings("error_codes", result.ErrorCodes))
		return &result, fmt.Errorf("%w: %s", e.ErrVerificationFailed, codes(result.ErrorCodes))
	}
	if result.Score < v.cfg.Threshold {
		v.logger.Warn("Bot detected", zap.Float64("score", result.Score))
		return &result, fmt.Errorf("%w: score %.2f", e.ErrBotDetected, result.Score)
	}
	return &result, nil
}

func (v *Verifier) post(ctx context.Context, token string) (*Result, error) {
	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("siteverify returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("siteverify returned %d", resp.StatusCode))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode siteverify response: %w", err))
	}
	return &result, nil
}

func codes(errorCodes []string) string {
	if len(errorCodes) == 0 {
		return "unknown"
	}
	return strings.Join(errorCodes, ", ")
}
