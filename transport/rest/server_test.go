package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

type fixedSnapshot entity.GameState

func (that fixedSnapshot) Snapshot() entity.GameState {
	return entity.GameState(that)
}

func TestHandler(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	t.Run("Ping answers pong", func(t *testing.T) {
		// Given: the REST handler
		handler := Handler(logger, fixedSnapshot(entity.Uninitialized()))

		// When: calling /ping
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		// Then: pong is returned
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pong", rec.Body.String())
	})

	t.Run("State returns the current snapshot", func(t *testing.T) {
		// Given: a session in the middle of a game
		state := entity.GameState{
			Phase:       entity.PhaseInGame,
			LocalPlayer: 2,
			PlayerTurn:  1,
			BoardSize:   3,
			Board:       [][]int{{1, 0, 0}, {0, 0, 0}, {0, 0, 0}},
			Opponents:   []string{"host"},
		}
		handler := Handler(logger, fixedSnapshot(state))

		// When: calling /state
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

		// Then: the snapshot is returned as JSON
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got entity.GameState
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, state, got)
	})

	t.Run("Other methods are not allowed", func(t *testing.T) {
		handler := Handler(logger, fixedSnapshot(entity.Uninitialized()))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/state", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
