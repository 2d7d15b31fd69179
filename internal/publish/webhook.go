package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/domain"
)

// WebhookConfig configures the responder webhook.
type WebhookConfig struct {
	URL      string
	Token    string               // sent as a bearer token when set
	Timeout  time.Duration        // default: 5s
	Retries  int                  // default: 2
	MinLevel domain.AlertSeverity // intents below this severity are not forwarded (default: HIGH)
}

// webhookPayload is the body posted for each batch.
type webhookPayload struct {
	Source  string               `json:"source"`
	Intents []domain.AlertIntent `json:"intents"`
}

// WebhookSink forwards severe intents to an external responder endpoint,
// such as a police dispatch or E-FIR intake service.
type WebhookSink struct {
	client   *resty.Client
	minLevel domain.AlertSeverity
	logger   *zap.Logger
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookConfig, logger *zap.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.MinLevel == "" {
		cfg.MinLevel = domain.AlertSeverityHigh
	}
	if SeverityRank(cfg.MinLevel) == 0 {
		return nil, fmt.Errorf("webhook: unknown min level %q", cfg.MinLevel)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &WebhookSink{
		client:   client,
		minLevel: cfg.MinLevel,
		logger:   logger.With(zap.String("component", "webhook-sink")),
	}, nil
}

// Name identifies the sink in metrics.
func (w *WebhookSink) Name() string { return "webhook" }

// Publish posts the intents at or above the configured severity.
// Nothing is sent when no intent qualifies.
func (w *WebhookSink) Publish(ctx context.Context, intents []domain.AlertIntent) error {
	minRank := SeverityRank(w.minLevel)
	var forward []domain.AlertIntent
	for _, in := range intents {
		if SeverityRank(in.Severity) >= minRank {
			forward = append(forward, in)
		}
	}
	if len(forward) == 0 {
		return nil
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{Source: "tourist-safety-engine", Intents: forward}).
		Post("")
	if err != nil {
		return fmt.Errorf("post intents: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post intents: status %d: %s", resp.StatusCode(), resp.String())
	}
	w.logger.Info("intents forwarded",
		zap.Int("count", len(forward)),
		zap.String("entity_id", forward[0].EntityID),
	)
	return nil
}

// SeverityRank orders alert severities from LOW (1) to CRITICAL (4).
// Unknown severities rank 0.
func SeverityRank(s domain.AlertSeverity) int {
	switch s {
	case domain.AlertSeverityLow:
		return 1
	case domain.AlertSeverityMedium:
		return 2
	case domain.AlertSeverityHigh:
		return 3
	case domain.AlertSeverityCritical:
		return 4
	}
	return 0
}
