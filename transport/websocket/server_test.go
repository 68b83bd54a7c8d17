package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

type mockSession struct {
	mock.Mock

	states chan entity.GameState
}

func newMockSession(t *testing.T) *mockSession {
	t.Helper()

	m := &mockSession{states: make(chan entity.GameState, 16)}
	m.Test(t)
	m.states <- entity.Uninitialized()

	return m
}

func (m *mockSession) HostGame(boardSize int) error { return m.Called(boardSize).Error(0) }
func (m *mockSession) DiscoverGame() error          { return m.Called().Error(0) }
func (m *mockSession) StartGame() error             { return m.Called().Error(0) }
func (m *mockSession) PlayAt(row, col int) error    { return m.Called(row, col).Error(0) }
func (m *mockSession) StartNextGame() error         { return m.Called().Error(0) }
func (m *mockSession) LeaveSession() error          { return m.Called().Error(0) }

func (m *mockSession) Subscribe() (<-chan entity.GameState, func()) {
	return m.states, func() {}
}

func dial(t *testing.T, sess session) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(New(slog.New(slog.NewJSONHandler(io.Discard, nil)), sess).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func readState(t *testing.T, conn *websocket.Conn) entity.GameState {
	t.Helper()

	msg := read(t, conn)
	require.Equal(t, actionState, msg.Action)

	var state entity.GameState
	require.NoError(t, json.Unmarshal(msg.Payload, &state))

	return state
}

func readError(t *testing.T, conn *websocket.Conn) ErrorPayload {
	t.Helper()

	msg := read(t, conn)
	require.Equal(t, actionError, msg.Action)

	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	return payload
}

func TestServer_State(t *testing.T) {
	t.Run("Pushes the current state on connect and every change", func(t *testing.T) {
		// Given: a connected client
		sess := newMockSession(t)
		conn := dial(t, sess)

		// Then: the current state is sent first
		assert.Equal(t, entity.PhaseIdle, readState(t, conn).Phase)

		// When: the session changes
		sess.states <- entity.GameState{Phase: entity.PhaseHosting, IsHost: true, BoardSize: 4, Opponents: []string{}}

		// Then: the client receives it
		state := readState(t, conn)
		assert.Equal(t, entity.PhaseHosting, state.Phase)
		assert.True(t, state.IsHost)
		assert.Equal(t, 4, state.BoardSize)
	})
}

func TestServer_Actions(t *testing.T) {
	t.Run("Routes every action to the session", func(t *testing.T) {
		// Given: a session expecting every intent once
		sess := newMockSession(t)
		called := make(chan string, 8)
		record := func(name string) func(mock.Arguments) {
			return func(mock.Arguments) { called <- name }
		}
		sess.On("HostGame", 5).Run(record("host")).Return(nil).Once()
		sess.On("DiscoverGame").Run(record("discover")).Return(nil).Once()
		sess.On("StartGame").Run(record("start")).Return(nil).Once()
		sess.On("PlayAt", 1, 2).Run(record("play")).Return(nil).Once()
		sess.On("StartNextGame").Run(record("next")).Return(nil).Once()
		sess.On("LeaveSession").Run(record("leave")).Return(nil).Once()

		conn := dial(t, sess)
		readState(t, conn)

		// When: the client sends one of each
		messages := []string{
			`{"action":"session:host","payload":{"board_size":5}}`,
			`{"action":"session:discover"}`,
			`{"action":"game:start"}`,
			`{"action":"game:play","payload":{"row":1,"col":2}}`,
			`{"action":"game:next"}`,
			`{"action":"session:leave"}`,
		}
		for _, msg := range messages {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		}

		// Then: each reaches the session in order
		var got []string
		for range messages {
			select {
			case name := <-called:
				got = append(got, name)
			case <-time.After(2 * time.Second):
				t.Fatalf("intents received: %v", got)
			}
		}
		assert.Equal(t, []string{"host", "discover", "start", "play", "next", "leave"}, got)
	})

	t.Run("Unknown actions return an error", func(t *testing.T) {
		sess := newMockSession(t)
		conn := dial(t, sess)
		readState(t, conn)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"game:undo"}`)))

		payload := readError(t, conn)
		assert.Equal(t, "game:undo", payload.Action)
		assert.Contains(t, payload.Error, ErrUnknownAction.Error())
	})

	t.Run("Session errors are reported back", func(t *testing.T) {
		sess := newMockSession(t)
		sess.On("HostGame", 9).Return(apperror.ErrInvalidConfiguration).Once()

		conn := dial(t, sess)
		readState(t, conn)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"session:host","payload":{"board_size":9}}`)))

		payload := readError(t, conn)
		assert.Contains(t, payload.Error, apperror.ErrInvalidConfiguration.Error())
	})

	t.Run("A play without payload is rejected", func(t *testing.T) {
		sess := newMockSession(t)
		conn := dial(t, sess)
		readState(t, conn)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"game:play"}`)))

		payload := readError(t, conn)
		assert.Contains(t, payload.Error, ErrBadPayload.Error())
		sess.AssertNotCalled(t, "PlayAt", mock.Anything, mock.Anything)
	})
}
