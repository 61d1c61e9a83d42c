package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/foxseedlab/modbot/internal/webhook"
)

const (
	userAgent        = "modbot-incidents/1"
	incidentIDHeader = "X-Incident-ID"
)

// HTTPSender posts incidents as JSON. An empty URL disables delivery.
type HTTPSender struct {
	webhookURL string
	client     *http.Client
}

func NewHTTPSender(webhookURL string) webhook.Sender {
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

func (s *HTTPSender) SendIncident(ctx context.Context, incident webhook.Incident) error {
	if s.webhookURL == "" {
		return nil
	}

	b, err := sonic.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to encode incident %s: %w", incident.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to build request for incident %s: %w", incident.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(incidentIDHeader, incident.ID)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver incident %s: %w", incident.ID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("webhook rejected incident %s with status %d", incident.ID, resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
