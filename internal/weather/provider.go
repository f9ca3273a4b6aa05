package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
)

// Provider fetches the current outdoor temperature in °F.
type Provider interface {
	Fetch(ctx context.Context) (float64, error)
}

// OpenMeteo reads the current temperature from the Open-Meteo forecast API.
type OpenMeteo struct {
	baseURL   string
	latitude  float64
	longitude float64
	client    *http.Client
}

func NewOpenMeteo(cfg config.Weather) *OpenMeteo {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenMeteo{
		baseURL:   cfg.BaseURL,
		latitude:  cfg.Latitude,
		longitude: cfg.Longitude,
		client:    &http.Client{Timeout: timeout},
	}
}

type forecastResponse struct {
	Current *struct {
		Temperature *float64 `json:"temperature_2m"`
	} `json:"current"`
}

func (o *OpenMeteo) Fetch(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(o.latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(o.longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m")
	q.Set("temperature_unit", "fahrenheit")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch weather: unexpected status %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode weather response: %w", err)
	}
	if body.Current == nil || body.Current.Temperature == nil {
		return 0, fmt.Errorf("decode weather response: missing current temperature")
	}
	return *body.Current.Temperature, nil
}
