// Package bridge exposes the coordinator over MQTT: aggregate status is
// published retained and mode/range requests are accepted on set topics.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/coordinator"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

const (
	stateSuffix        = "state"
	availabilitySuffix = "availability"
	setModeSuffix      = "set/mode"
	setRangeSuffix     = "set/range"

	requestTimeout = 30 * time.Second
)

// Publisher pushes coordinator status to the broker.
type Publisher interface {
	PublishStatus(coordinator.Status) error
	Close() error
}

// Controller is the part of the coordinator the set topics drive.
type Controller interface {
	SetGlobalMode(ctx context.Context, mode model.Mode, reason model.ChangeReason) (coordinator.CycleResult, error)
	SetGlobalTemperatureRangeImmediate(ctx context.Context, min, max float64) (coordinator.CycleResult, error)
}

// Topics derives every topic from a single prefix.
type Topics struct {
	State        string
	Availability string
	SetMode      string
	SetRange     string
}

func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		State:        prefix + "/" + stateSuffix,
		Availability: prefix + "/" + availabilitySuffix,
		SetMode:      prefix + "/" + setModeSuffix,
		SetRange:     prefix + "/" + setRangeSuffix,
	}
}

// FormatStatus renders the retained state payload.
func FormatStatus(s coordinator.Status) ([]byte, error) {
	return json.Marshal(s)
}

type modeRequest struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"`
}

type rangeRequest struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// Handler turns set-topic payloads into coordinator calls.
type Handler struct {
	controller Controller
}

func NewHandler(controller Controller) *Handler {
	return &Handler{controller: controller}
}

// HandleMode accepts either a bare mode ("heat") or {"mode":"heat","reason":"..."}.
func (h *Handler) HandleMode(payload []byte) error {
	req := modeRequest{}
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return fmt.Errorf("decode mode request: %w", err)
		}
	} else {
		req.Mode = strings.ToLower(trimmed)
	}

	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		return err
	}
	reason := model.ChangeReason(req.Reason)
	if reason == "" {
		reason = model.ReasonUserRequest
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := h.controller.SetGlobalMode(ctx, mode, reason)
	if err != nil {
		return fmt.Errorf("set mode %s: %w", mode, err)
	}
	log.Info().Str("mode", string(mode)).Int("actions", len(result.Actions)).Msg("Mode set via MQTT")
	return nil
}

// HandleRange accepts {"min":68,"max":72}.
func (h *Handler) HandleRange(payload []byte) error {
	var req rangeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode range request: %w", err)
	}
	if req.Min == nil || req.Max == nil {
		return &model.ValidationError{Field: "range", Message: "both min and max are required"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := h.controller.SetGlobalTemperatureRangeImmediate(ctx, *req.Min, *req.Max)
	if err != nil {
		return fmt.Errorf("set range: %w", err)
	}
	log.Info().
		Float64("min", *req.Min).
		Float64("max", *req.Max).
		Int("actions", len(result.Actions)).
		Msg("Range set via MQTT")
	return nil
}
