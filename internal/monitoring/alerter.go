package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailed  AlertType = "run_failed"
	AlertRunPartial AlertType = "run_partial"
)

// maxListedFailures bounds the failures quoted in an alert message.
const maxListedFailures = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunOutcome summarizes a finished command run.
type RunOutcome struct {
	Command  string
	RunID    string
	Duration time.Duration
	// Failures lists the units of work skipped after exhausting retries.
	Failures []string
	Err      error
}

// Alerter turns run outcomes into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MetricsConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given metrics config.
func NewAlerter(cfg config.MetricsConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts a run outcome warrants. A clean run yields none.
func (a *Alerter) Evaluate(o RunOutcome) []Alert {
	now := time.Now().UTC()
	details := map[string]any{
		"command":      o.Command,
		"run_id":       o.RunID,
		"duration_sec": o.Duration.Seconds(),
		"failed_units": len(o.Failures),
	}

	if o.Err != nil {
		details["error"] = o.Err.Error()
		return []Alert{{
			Type:      AlertRunFailed,
			Severity:  "high",
			Message:   fmt.Sprintf("%s run %s aborted: %v", o.Command, o.RunID, o.Err),
			Details:   details,
			Timestamp: now,
		}}
	}

	if len(o.Failures) > 0 {
		listed := o.Failures
		if len(listed) > maxListedFailures {
			listed = listed[:maxListedFailures]
		}
		msg := fmt.Sprintf("%s run %s skipped %d unit(s): %s",
			o.Command, o.RunID, len(o.Failures), strings.Join(listed, ", "))
		if len(o.Failures) > maxListedFailures {
			msg += fmt.Sprintf(" and %d more", len(o.Failures)-maxListedFailures)
		}
		details["failures"] = o.Failures
		return []Alert{{
			Type:      AlertRunPartial,
			Severity:  "medium",
			Message:   msg,
			Details:   details,
			Timestamp: now,
		}}
	}

	return nil
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// Notify evaluates an outcome and sends whatever it warrants.
func (a *Alerter) Notify(ctx context.Context, o RunOutcome) int {
	return a.SendAlerts(ctx, a.Evaluate(o))
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
