// Package api exposes HTTP handlers for the playtime service.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"example.com/playtime/internal/auth"
	"example.com/playtime/internal/domain"
)

// Handler coordinates HTTP requests with the session tracker.
type Handler struct {
	tracker *domain.Tracker
}

// NewHandler builds a Handler.
func NewHandler(tracker *domain.Tracker) *Handler {
	return &Handler{tracker: tracker}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/playtime/summary", h.summary)
	mux.HandleFunc("/v1/admin/reset", h.reset)
	mux.HandleFunc("/v1/admin/hard-reset", h.hardReset)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePlaytimeRead) && !claims.HasScope(auth.ScopePlaytimeAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "scope playtime:read required")
		return
	}

	userID, err := parseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing or invalid user_id parameter")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.tracker.Summary(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SummaryEntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, SummaryEntryView{Activity: entry.Activity, TotalSeconds: entry.TotalSeconds})
	}

	writeJSON(w, http.StatusOK, SummaryResponse{UserID: userID, Entries: items})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePlaytimeAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "scope playtime:admin required")
		return
	}

	var req ResetRequest
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	if req.UserID != 0 {
		if err := h.tracker.ResetUser(r.Context(), req.UserID); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ResetResponse{Status: "ok", Scope: "user"})
		return
	}

	if err := h.tracker.ResetAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{Status: "ok", Scope: "all"})
}

func (h *Handler) hardReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePlaytimeAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "scope playtime:admin required")
		return
	}

	if err := h.tracker.HardReset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{Status: "ok", Scope: "schema"})
}

func parseUserID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

// SummaryResponse packages a playtime summary.
type SummaryResponse struct {
	UserID  int64              `json:"user_id"`
	Entries []SummaryEntryView `json:"entries"`
}

// SummaryEntryView is one summary row.
type SummaryEntryView struct {
	Activity     string `json:"activity"`
	TotalSeconds int64  `json:"total_seconds"`
}

// ResetRequest optionally names the user to reset; zero means everyone.
type ResetRequest struct {
	UserID int64 `json:"user_id"`
}

// ResetResponse reports the outcome of an admin reset.
type ResetResponse struct {
	Status string `json:"status"`
	Scope  string `json:"scope"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
