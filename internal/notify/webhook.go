package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Violation is the payload posted to the configured webhook when a
// non-compliant check is recorded.
type Violation struct {
	CheckID      int64    `json:"check_id"`
	StudentID    int64    `json:"student_id"`
	StudentName  string   `json:"student_name"`
	CheckTime    string   `json:"check_time"`
	MissingItems []string `json:"missing_items"`
	ImagePath    string   `json:"image_path,omitempty"`
}

// Webhook posts violation notifications to a teacher-facing endpoint.
type Webhook struct {
	URL  string
	HTTP *http.Client
}

// NewWebhook creates a client with a bounded timeout. An empty URL disables
// delivery; Notify becomes a no-op.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:  url,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (w *Webhook) Enabled() bool {
	return w != nil && w.URL != ""
}

// Notify posts one violation. Failures are returned for logging; the caller
// does not retry.
func (w *Webhook) Notify(ctx context.Context, v Violation) error {
	if !w.Enabled() {
		return nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}
