package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"call-platform/internal/config"
)

// HTTPDispatcher posts invites to an external push provider.
// The provider fans out to the callee's registered device endpoints;
// token storage and cleanup live entirely on the provider side.
type HTTPDispatcher struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPDispatcher(cfg config.PushConfig) *HTTPDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDispatcher{
		url:    cfg.ProviderURL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

type providerResponse struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

func (d *HTTPDispatcher) SendInvite(ctx context.Context, inv Invite) (bool, error) {
	body, err := json.Marshal(inv)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("push: provider returned status %d", resp.StatusCode)
	}

	var out providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Provider accepted the request; treat an unreadable body as delivered.
		return true, nil
	}
	return out.Delivered > 0, nil
}
