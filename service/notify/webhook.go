package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/config"
)

// DefaultWebhookTimeout bounds a single notice POST.
const DefaultWebhookTimeout = 10 * time.Second

type webhookService struct {
	CfgSvc config.IService
	client *http.Client
}

// NewWebhook posts each notice as JSON to the configured webhook URL. A
// failed post is reported once and not retried.
func NewWebhook(cfgsvc config.IService) IService {
	return &webhookService{
		CfgSvc: cfgsvc,
		client: &http.Client{Timeout: DefaultWebhookTimeout},
	}
}

type webhookPayload struct {
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Reference string `json:"reference,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (svc *webhookService) Notify(ctx context.Context, n model.Notice) error {
	url := svc.CfgSvc.GetWebhookURL()
	if url == "" {
		return nil
	}

	ts := n.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	body, err := json.Marshal(webhookPayload{
		Source:    "vs-feedback",
		Kind:      string(n.Kind),
		Message:   n.Message,
		Reference: n.Reference,
		Timestamp: ts.Format(time.RFC3339),
	})
	if err != nil {
		return xerrors.Errorf("webhook: marshal notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.client.Do(req)
	if err != nil {
		return xerrors.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return xerrors.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
