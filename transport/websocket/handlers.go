package websocket

import (
	"encoding/json"
	"fmt"
)

func decodePayload(payload []byte, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrBadPayload)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	return nil
}

func (that *Server) handleHost(payload []byte) error {
	var req HostPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}

	if err := that.session.HostGame(req.BoardSize); err != nil {
		return fmt.Errorf("failed to host game: %w", err)
	}

	return nil
}

func (that *Server) handleDiscover([]byte) error {
	return that.session.DiscoverGame()
}

func (that *Server) handleStart([]byte) error {
	return that.session.StartGame()
}

func (that *Server) handlePlay(payload []byte) error {
	var req PlayPayload
	if err := decodePayload(payload, &req); err != nil {
		return err
	}

	return that.session.PlayAt(req.Row, req.Col)
}

func (that *Server) handleNext([]byte) error {
	return that.session.StartNextGame()
}

func (that *Server) handleLeave([]byte) error {
	return that.session.LeaveSession()
}
