// Package push is the seam to the external push-notification gateway.
// The dispatcher takes a recipient token list and a payload and reports
// per-token delivery results so the caller can weed out dead tokens.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notification is the payload handed to the push gateway.
type Notification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"imageUrl,omitempty"`
	RoomID   string `json:"roomId,omitempty"`
	SenderID string `json:"senderId,omitempty"`
}

// Result is the delivery outcome for a single token.
type Result struct {
	Token string `json:"token"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Dispatcher delivers a notification to a list of device tokens.
type Dispatcher interface {
	Send(ctx context.Context, tokens []string, n Notification) ([]Result, error)
}

// New returns a webhook dispatcher when gatewayURL is set and a disabled one
// otherwise.
func New(gatewayURL string, logger zerolog.Logger) Dispatcher {
	if gatewayURL == "" {
		return disabled{}
	}
	return &Webhook{
		url: gatewayURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: logger,
	}
}

// disabled drops every dispatch. Used when no gateway is configured.
type disabled struct{}

func (disabled) Send(ctx context.Context, tokens []string, n Notification) ([]Result, error) {
	return nil, nil
}

// Webhook posts notifications to an HTTP push gateway as JSON and expects
// per-token results back.
type Webhook struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

type webhookRequest struct {
	Tokens       []string     `json:"tokens"`
	Notification Notification `json:"notification"`
}

type webhookResponse struct {
	Results []Result `json:"results"`
}

// Send posts the notification to the gateway. A token list that is empty is
// a no-op, not an error.
func (w *Webhook) Send(ctx context.Context, tokens []string, n Notification) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(webhookRequest{Tokens: tokens, Notification: n})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("push: gateway returned status %d", resp.StatusCode)
	}

	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	failed := 0
	for _, r := range out.Results {
		if !r.OK {
			failed++
		}
	}
	if failed > 0 {
		w.log.Warn().Int("failed", failed).Int("total", len(tokens)).Msg("push delivery failures")
	}
	return out.Results, nil
}

// FailedTokens extracts the tokens whose delivery failed.
func FailedTokens(results []Result) []string {
	var failed []string
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r.Token)
		}
	}
	return failed
}
