package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tis24dev/stackrestore/internal/logging"
)

// WebhookConfig configures the single webhook endpoint.
type WebhookConfig struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Headers    map[string]string
}

// WebhookNotifier POSTs the run summary as JSON.
type WebhookNotifier struct {
	config WebhookConfig
	logger *logging.Logger
	client *http.Client
}

// NewWebhookNotifier validates cfg. An empty URL yields a disabled notifier.
func NewWebhookNotifier(cfg WebhookConfig, logger *logging.Logger) (*WebhookNotifier, error) {
	w := &WebhookNotifier{config: cfg, logger: logger}
	if cfg.URL == "" {
		logger.Debug("Webhook notifications disabled (no URL)")
		return w, nil
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook URL scheme %q", parsed.Scheme)
	}
	if w.config.Timeout <= 0 {
		w.config.Timeout = 15 * time.Second
	}
	if w.config.RetryDelay <= 0 {
		w.config.RetryDelay = 2 * time.Second
	}
	if w.config.MaxRetries < 0 {
		w.config.MaxRetries = 0
	}
	w.client = &http.Client{Timeout: w.config.Timeout}
	logger.Debug("Webhook notifier ready for %s (timeout %s)", maskURL(cfg.URL), w.config.Timeout)
	return w, nil
}

// Name returns the notifier name
func (w *WebhookNotifier) Name() string { return "Webhook" }

// IsEnabled reports whether a URL is configured.
func (w *WebhookNotifier) IsEnabled() bool { return w != nil && w.client != nil }

// Send delivers data, retrying on transport errors and 5xx responses.
func (w *WebhookNotifier) Send(ctx context.Context, data *NotificationData) (*NotificationResult, error) {
	start := time.Now()
	result := &NotificationResult{Method: "webhook", Metadata: map[string]interface{}{}}
	if !w.IsEnabled() {
		result.Error = fmt.Errorf("webhook notifications not enabled")
		return result, nil
	}

	data.DurationHR = FormatDuration(data.Duration)
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	w.logger.Debug("Webhook payload: %d bytes", len(payload))

	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			w.logger.Debug("Retry attempt %d/%d after %s", attempt, w.config.MaxRetries, w.config.RetryDelay)
			timer := time.NewTimer(w.config.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				result.Error = ctx.Err()
				result.Duration = time.Since(start)
				return result, nil
			case <-timer.C:
			}
		}

		status, retry, err := w.post(ctx, payload)
		result.Metadata["http_status"] = status
		if err == nil {
			result.Success = true
			result.Duration = time.Since(start)
			w.logger.Info("Webhook notification delivered to %s", maskURL(w.config.URL))
			return result, nil
		}
		lastErr = err
		w.logger.Warning("Webhook attempt %d/%d failed: %v", attempt+1, w.config.MaxRetries+1, err)
		if !retry {
			break
		}
	}

	result.Error = lastErr
	result.Duration = time.Since(start)
	return result, nil
}

func (w *WebhookNotifier) post(ctx context.Context, payload []byte) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stackrestore")
	for k, v := range w.config.Headers {
		w.logger.Debug("Header %s: %s", k, maskHeaderValue(k, v))
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, false, nil
	}
	msg := strings.TrimSpace(string(body))
	retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return resp.StatusCode, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}

// maskURL masks sensitive parts of URL for logging
func maskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "***INVALID_URL***"
	}

	var b strings.Builder
	b.WriteString(parsed.Scheme)
	b.WriteString("://")
	b.WriteString(parsed.Host)
	if parsed.Path != "" && parsed.Path != "/" {
		b.WriteString("/***MASKED***")
	}
	if parsed.RawQuery != "" {
		b.WriteString("?***MASKED***")
	}
	return b.String()
}

// maskHeaderValue masks sensitive header values for logging
func maskHeaderValue(key, value string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "auth") || strings.Contains(key, "token") || strings.Contains(key, "key") || strings.Contains(key, "secret") {
		if len(value) > 10 {
			return value[:4] + "***MASKED***"
		}
		return "***MASKED***"
	}
	return value
}
