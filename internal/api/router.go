package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/ringbridge/internal/audit"
)

// buildRouter mounts the monitoring routes. Everything is read-only GET.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, s.observe, s.recoverPanics)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/devices", s.handleListDevices)
		r.Get("/commands", s.handleListCommands)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"mqtt_connected": s.bridge.BusConnected(),
	})
}

// handleListDevices returns every registered device with its availability.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleListCommands returns a page of the command journal.
//
// Query parameters:
//   - device_id: filter by device
//   - location_id: filter by location
//   - outcome: filter by outcome (success, failure, unknown, error)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command journal not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		DeviceID:   q.Get("device_id"),
		LocationID: q.Get("location_id"),
		Outcome:    q.Get("outcome"),
	}
	var ok bool
	if filter.Limit, ok = queryCount(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryCount(w, q.Get("offset"), "offset"); !ok {
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list commands", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryCount parses an optional non-negative integer parameter. On a bad
// value it writes the 400 itself and reports false.
func queryCount(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
