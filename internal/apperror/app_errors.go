package apperror

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid game configuration")
	ErrOutOfBounds          = errors.New("position is out of bounds")
	ErrCellOccupied         = errors.New("cell is already occupied")
	ErrInvalidPlayer        = errors.New("invalid player number")
	ErrGameFinished         = errors.New("game is already finished")
	ErrNotYourTurn          = errors.New("it's not your turn")

	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownMessage   = errors.New("unknown message")

	ErrEndpointUnknown = errors.New("unknown endpoint")
	ErrSessionClosed   = errors.New("session is closed")
)
