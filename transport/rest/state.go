package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

type snapshotter interface {
	Snapshot() entity.GameState
}

// stateHandler - returns the latest session snapshot as JSON.
func stateHandler(logger *slog.Logger, session snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(session.Snapshot()); err != nil {
			logger.Error("failed to encode state", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
