package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tekkabyte/minelink/supabase"
	"github.com/tekkabyte/minelink/telemetry"
)

type handlers struct {
	events EventSource
	secret string
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleEvents serves the event feed consumed by the game-side poller.
// Requires serverId; an optional since filter (RFC 3339) returns only newer
// rows. Authenticated by the shared secret header.
func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" {
		got := r.Header.Get("X-Server-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			slog.Warn("event feed auth failed", slog.String("remote_addr", r.RemoteAddr))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	serverID := r.URL.Query().Get("serverId")
	if serverID == "" {
		http.Error(w, "serverId is required", http.StatusBadRequest)
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		since = t
	}

	rows, err := h.events.FetchEvents(r.Context(), serverID, since)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("event fetch failed",
			slog.String("server_id", serverID), slog.Any("err", err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	if rows == nil {
		rows = []supabase.EventRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		slog.Error("event feed encode failed", slog.Any("err", err))
	}
}
