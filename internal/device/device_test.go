package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		reading     UnitReading
		wantCurrent float64
		wantTarget  float64
		wantMode    model.Mode
		wantErr     bool
	}{
		{
			name:        "fahrenheit passthrough",
			reading:     UnitReading{Current: Temperature{70.5, Fahrenheit}, Setpoint: Temperature{72, Fahrenheit}, Mode: "heat"},
			wantCurrent: 70.5, wantTarget: 72, wantMode: model.ModeHeat,
		},
		{
			name:        "celsius converted",
			reading:     UnitReading{Current: Temperature{20, Celsius}, Setpoint: Temperature{22.5, Celsius}, Mode: "cool"},
			wantCurrent: 68, wantTarget: 72.5, wantMode: model.ModeCool,
		},
		{
			name:        "mixed scales",
			reading:     UnitReading{Current: Temperature{21, Celsius}, Setpoint: Temperature{70, Fahrenheit}, Mode: "off"},
			wantCurrent: 69.8, wantTarget: 70, wantMode: model.ModeOff,
		},
		{
			name:    "unknown scale",
			reading: UnitReading{Current: Temperature{20, "K"}, Setpoint: Temperature{70, Fahrenheit}, Mode: "off"},
			wantErr: true,
		},
		{
			name:    "missing scale",
			reading: UnitReading{Current: Temperature{20, Fahrenheit}, Setpoint: Temperature{70, ""}, Mode: "off"},
			wantErr: true,
		},
		{
			name:    "unsupported mode",
			reading: UnitReading{Current: Temperature{70, Fahrenheit}, Setpoint: Temperature{70, Fahrenheit}, Mode: "dry"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.reading.Normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantCurrent, n.CurrentTemperature, 0.001)
			assert.InDelta(t, tt.wantTarget, n.TargetTemperature, 0.001)
			assert.Equal(t, tt.wantMode, n.Mode)
		})
	}
}

func TestHTTPClientStatusAndCommands(t *testing.T) {
	var commands []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/units/living/status":
			w.Write([]byte(`{"current_temperature":{"value":21,"unit":"C"},"setpoint":{"value":70,"unit":"F"},"mode":"heat"}`))
		case "/units/living/mode":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			commands = append(commands, "mode="+body["mode"])
		case "/units/living/temperature":
			var body Temperature
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, Fahrenheit, body.Unit)
			commands = append(commands, "temp")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(config.Device{BaseURL: srv.URL, Token: "secret"})
	require.True(t, c.IsAuthenticated())
	ctx := context.Background()

	reading, err := c.GetStatus(ctx, "living")
	require.NoError(t, err)
	assert.Equal(t, Celsius, reading.Current.Unit)
	assert.Equal(t, "heat", reading.Mode)

	require.NoError(t, c.SetMode(ctx, "living", model.ModeCool))
	require.NoError(t, c.SetTemperature(ctx, "living", 72))
	assert.Equal(t, []string{"mode=cool", "temp"}, commands)

	_, err = c.GetStatus(ctx, "attic")
	assert.ErrorContains(t, err, "unexpected status 404")
}

func TestHTTPClientUnauthorized(t *testing.T) {
	reject := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"current_temperature":{"value":70,"unit":"F"},"setpoint":{"value":70,"unit":"F"},"mode":"off"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(config.Device{BaseURL: srv.URL, Token: "expired"})
	_, err := c.GetStatus(context.Background(), "u1")
	assert.ErrorContains(t, err, "unauthorized")
	assert.False(t, c.IsAuthenticated())

	reject = false
	_, err = c.GetStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, c.IsAuthenticated())
}

func TestHTTPClientWithoutToken(t *testing.T) {
	c := NewHTTPClient(config.Device{BaseURL: "http://127.0.0.1:1"})
	assert.False(t, c.IsAuthenticated())
	assert.ErrorContains(t, c.SetMode(context.Background(), "u1", model.ModeOff), "not authenticated")
}

func TestFakeClientReflectsCommands(t *testing.T) {
	f := NewFakeClient()
	f.SetReading("u1", 66, 70, model.ModeOff)
	ctx := context.Background()

	require.NoError(t, f.SetMode(ctx, "u1", model.ModeHeat))
	require.NoError(t, f.SetTemperature(ctx, "u1", 68))

	r, err := f.GetStatus(ctx, "u1")
	require.NoError(t, err)
	n, err := r.Normalize()
	require.NoError(t, err)
	assert.Equal(t, model.ModeHeat, n.Mode)
	assert.Equal(t, 68.0, n.TargetTemperature)

	f.FailCommands("u1", errors.New("offline"))
	assert.Error(t, f.SetMode(ctx, "u1", model.ModeOff))
	assert.Len(t, f.Calls(), 3)

	_, err = f.GetStatus(ctx, "ghost")
	assert.Error(t, err)
}
