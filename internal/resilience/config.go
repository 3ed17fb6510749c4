package resilience

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/storm-data-lsr-cache/internal/config"
	"github.com/couchcryptid/storm-data-lsr-cache/internal/observability"
)

// NewFromConfig builds a Client with the configured egress allowlist,
// upstream timeout and retry policy.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	allow, err := DefaultAllowlist(cfg.PublicBaseURL, cfg.UpstreamURL, cfg.AlertsURL)
	if err != nil {
		return nil, fmt.Errorf("build egress allowlist: %w", err)
	}
	return New(Options{
		HTTPClient:  &http.Client{Timeout: cfg.UpstreamTimeout},
		Allowlist:   allow,
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Logger:      logger,
		Metrics:     metrics,
	}), nil
}
