package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"

	"github.com/notifyhub/gyre/internal/domain"
)

// WebhookProvider POSTs projection updates to the URL stored on each
// delivery. Retries are driven by the caller one attempt at a time, so the
// heimdall client itself never retries.
type WebhookProvider struct {
	client *httpclient.Client
}

func NewWebhookProvider(timeout time.Duration) *WebhookProvider {
	return &WebhookProvider{
		client: httpclient.NewClient(
			httpclient.WithHTTPTimeout(timeout),
			httpclient.WithRetryCount(0),
		),
	}
}

// Send posts the delivery payload and treats any 2xx as success.
func (p *WebhookProvider) Send(ctx context.Context, d *domain.Delivery) (*SendResponse, error) {
	data := d.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	body, err := json.Marshal(SendRequest{
		Listener:     d.ListenerName,
		ProjectionID: d.ProjectionID,
		Data:         data,
		DeliveryID:   d.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gyre-Delivery", d.ID)

	resp, err := p.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	if err != nil {
		// heimdall reports 5xx as an error but still hands back the response
		if resp != nil {
			return &SendResponse{StatusCode: resp.StatusCode}, fmt.Errorf("send request: %w", err)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SendResponse{StatusCode: resp.StatusCode},
			fmt.Errorf("unexpected webhook status: %d", resp.StatusCode)
	}
	return &SendResponse{StatusCode: resp.StatusCode}, nil
}

// compile-time check that WebhookProvider implements Provider
var _ Provider = (*WebhookProvider)(nil)
