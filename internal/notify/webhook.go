package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookPoster posts JSON documents to a fixed URL.
type WebhookPoster struct {
	url    string
	client *http.Client
}

// NewWebhookPoster returns nil when url is empty.
func NewWebhookPoster(url string, timeout time.Duration) *WebhookPoster {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookPoster{url: url, client: &http.Client{Timeout: timeout}}
}

// Post sends v as JSON. Any non-2xx answer is an error.
func (w *WebhookPoster) Post(ctx context.Context, v any) error {
	if w == nil {
		return nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
