package telemetry

import (
	"encoding/json"
	"net/http"

	"balance-board/board"
)

// Source is the part of *board.Board the HTTP API needs.
type Source interface {
	Snapshot() board.Snapshot
	ResetOrigin()
}

// NewMux wires the WebSocket stream and the REST API.
//
//	GET  /ws                live frames
//	GET  /api/tilt          latest frame
//	POST /api/origin/reset  zero the board at its current tilt
func NewMux(src Source, hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/ws", hub)

	mux.HandleFunc("/api/tilt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "GET only", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, NewFrame(src.Snapshot()))
	})

	mux.HandleFunc("/api/origin/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		src.ResetOrigin()
		writeJSON(w, map[string]bool{"ok": true})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("json encode error")
	}
}
