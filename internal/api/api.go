package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/coordinator"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
	"github.com/thatsimonsguy/minisplit-coordinator/internal/store"
)

type Server struct {
	coord *coordinator.Coordinator
	store *store.Store

	mu   sync.Mutex
	http *http.Server
}

type ModeRequest struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"`
}

type RangeRequest struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

type EmergencyOffRequest struct {
	Reason string `json:"reason"`
}

type ResolveRequest struct {
	Resolution string `json:"resolution"`
}

type ConflictResponse struct {
	Index int `json:"index"`
	model.ConflictEvent
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(coord *coordinator.Coordinator) *Server {
	return &Server{
		coord: coord,
		store: coord.Store(),
	}
}

// Handler returns the API routes wrapped in the CORS handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/units", s.handleUnits)
	mux.HandleFunc("/api/cycle", s.handleCycle)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/api/range", s.handleRange)
	mux.HandleFunc("/api/emergency-off", s.handleEmergencyOff)
	mux.HandleFunc("/api/overrides", s.handleOverrides)
	mux.HandleFunc("/api/overrides/", s.handleOverrides)
	mux.HandleFunc("/api/conflicts", s.handleConflicts)
	mux.HandleFunc("/api/conflicts/", s.handleConflictOperations)
	mux.HandleFunc("/api/preferences", s.handlePreferences)
	mux.HandleFunc("/api/schedules/", s.handleSchedules)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()
	log.Info().Str("address", addr).Msg("Starting REST API server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.coord.GetCoordinatorStatus())
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	snap := s.store.Snapshot()
	units := make([]*model.UnitState, 0, len(snap.Units))
	for _, u := range snap.Units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	s.writeJSON(w, http.StatusOK, units)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	log.Info().Msg("Coordination cycle triggered via API")
	s.writeJSON(w, http.StatusOK, s.coord.RunCoordinationCycle(r.Context()))
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	result, err := s.coord.SetGlobalMode(r.Context(), mode, model.ChangeReason(req.Reason))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	log.Info().Str("mode", req.Mode).Msg("Global mode updated via API")
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req RangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if req.Min == nil || req.Max == nil {
		s.writeError(w, http.StatusBadRequest, "Both min and max are required")
		return
	}

	set := s.coord.SetGlobalTemperatureRange
	if immediate, _ := strconv.ParseBool(r.URL.Query().Get("immediate")); immediate {
		set = s.coord.SetGlobalTemperatureRangeImmediate
	}
	result, err := set(r.Context(), *req.Min, *req.Max)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	log.Info().Float64("min", *req.Min).Float64("max", *req.Max).Msg("Global range updated via API")
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEmergencyOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req EmergencyOffRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "api request"
	}
	s.writeJSON(w, http.StatusOK, s.coord.EmergencyOff(r.Context(), req.Reason))
}

func (s *Server) handleOverrides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	unitID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/overrides"), "/")
	if unitID == "" {
		s.writeJSON(w, http.StatusOK, s.coord.ClearAllManualOverrides(r.Context()))
		return
	}

	result, err := s.coord.ClearManualOverride(r.Context(), unitID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	onlyOpen, _ := strconv.ParseBool(r.URL.Query().Get("unresolved"))

	response := []ConflictResponse{}
	for i, c := range s.store.Snapshot().Conflicts.Items() {
		if onlyOpen && c.Resolved {
			continue
		}
		response = append(response, ConflictResponse{Index: i, ConflictEvent: c})
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleConflictOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/conflicts/")
	parts := strings.Split(path, "/")

	if len(parts) != 2 || parts[1] != "resolve" {
		s.writeError(w, http.StatusNotFound, "Invalid path")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Conflict index must be an integer")
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.store.ResolveConflict(index, req.Resolution); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.store.Preferences())
	case http.MethodPut:
		var prefs model.UserPreferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		if err := s.store.UpdatePreferences(prefs); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.store.Preferences())
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/schedules/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "Schedule ID required")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var sched model.Schedule
		if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
		sched.ID = id
		if err := s.store.UpsertSchedule(sched); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sched)
	case http.MethodDelete:
		if err := s.store.DeleteSchedule(id); err != nil {
			s.writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// writeFailure maps domain errors to status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnknownUnit), errors.Is(err, store.ErrConflictIndex), errors.Is(err, store.ErrUnknownSchedule):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("API request failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
