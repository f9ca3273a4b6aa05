package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

// HTTPClient talks to the vendor cloud API with a bearer token. It reports
// itself unauthenticated when no token is configured or after the API rejects
// the token, and recovers on the next accepted call.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client

	authenticated atomic.Bool
}

func NewHTTPClient(cfg config.Device) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
	c.authenticated.Store(cfg.Token != "")
	if cfg.Token == "" {
		log.Warn().Msg("Device API token not configured - running without device control")
	}
	return c
}

func (c *HTTPClient) IsAuthenticated() bool {
	return c.authenticated.Load()
}

func (c *HTTPClient) GetStatus(ctx context.Context, unitID string) (UnitReading, error) {
	var reading UnitReading
	if err := c.do(ctx, http.MethodGet, unitID, "status", nil, &reading); err != nil {
		return UnitReading{}, err
	}
	return reading, nil
}

func (c *HTTPClient) SetMode(ctx context.Context, unitID string, mode model.Mode) error {
	return c.do(ctx, http.MethodPost, unitID, "mode", map[string]string{"mode": string(mode)}, nil)
}

func (c *HTTPClient) SetTemperature(ctx context.Context, unitID string, tempF float64) error {
	body := Temperature{Value: tempF, Unit: Fahrenheit}
	return c.do(ctx, http.MethodPost, unitID, "temperature", body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, unitID, action string, body, out any) error {
	if c.token == "" {
		return fmt.Errorf("%s %s: not authenticated", action, unitID)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", action, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	endpoint := fmt.Sprintf("%s/units/%s/%s", c.baseURL, url.PathEscape(unitID), action)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, unitID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if c.authenticated.Swap(false) {
			log.Warn().Int("status", resp.StatusCode).Msg("Device API rejected credentials")
		}
		return fmt.Errorf("%s %s: unauthorized (status %d)", action, unitID, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: unexpected status %d", action, unitID, resp.StatusCode)
	}
	c.authenticated.Store(true)

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response for %s: %w", action, unitID, err)
		}
	}
	return nil
}
