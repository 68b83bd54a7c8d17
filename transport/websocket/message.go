package websocket

import (
	"encoding/json"
	"errors"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

const (
	actionHost     = "session:host"
	actionDiscover = "session:discover"
	actionStart    = "game:start"
	actionPlay     = "game:play"
	actionNext     = "game:next"
	actionLeave    = "session:leave"

	actionState = "state"
	actionError = "error"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrRateLimited   = errors.New("too many requests")
	ErrBadPayload    = errors.New("bad payload")
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HostPayload struct {
	BoardSize int `json:"board_size"`
}

type PlayPayload struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type ErrorPayload struct {
	Action string `json:"action,omitempty"`
	Error  string `json:"error"`
}

func stateMessage(state entity.GameState) Message {
	return Message{Action: actionState, Payload: mustMarshal(state)}
}

func errorMessage(action string, err error) Message {
	return Message{Action: actionError, Payload: mustMarshal(ErrorPayload{Action: action, Error: err.Error()})}
}

// mustMarshal is only used with plain structs that always encode.
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	return b
}
