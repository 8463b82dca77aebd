// Package extsync holds the outbound HTTP clients for the systems this
// backend keeps in sync: the NAV ERP, the Leverans gate system and the
// Excalibur receipt middleware. All calls carry bounded timeouts.
package extsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/utils"
)

type syncClient struct {
	name    string
	baseURL string
	authKey string
	http    *http.Client
}

func newSyncClient(name string, baseURLEnv string, defaultBaseURL string, timeout time.Duration) *syncClient {
	baseURL := strings.TrimSpace(os.Getenv(baseURLEnv))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &syncClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		authKey: strings.TrimSpace(os.Getenv("MIDDLEWARE_AUTH_KEY")),
		http:    &http.Client{Timeout: timeout},
	}
}

// doJSON performs one JSON round trip. Non-2xx responses become an error
// carrying the status and the truncated upstream body, which is what ends
// up in contingency rows and logs.
func (c *syncClient) doJSON(ctx context.Context, method string, path string, payload any, out any) error {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authKey != "" {
		req.Header.Set("Authorization", c.authKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s api error %d: %s", c.name, resp.StatusCode,
			utils.TruncateErrorDetail(strings.TrimSpace(string(body))))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s response decode failed: %w", c.name, err)
		}
	}
	return nil
}
