package protocol

import "fmt"

const (
	TagNewGame = "NEWGAME"
	TagPlay    = "PLAY"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNewGame
	KindPlay
)

func (k Kind) String() string {
	switch k {
	case KindNewGame:
		return TagNewGame
	case KindPlay:
		return TagPlay
	default:
		return "UNKNOWN"
	}
}

// Message is one application message exchanged between peers.
type Message interface {
	Kind() Kind
	fields() []int
}

// NewGame is sent by the host to each opponent when a round starts.
type NewGame struct {
	BoardSize      int
	Players        int
	AssignedPlayer int
}

func (NewGame) Kind() Kind {
	return KindNewGame
}

func (that NewGame) fields() []int {
	return []int{that.BoardSize, that.Players, that.AssignedPlayer}
}

func (that NewGame) String() string {
	return fmt.Sprintf("newgame{board_size=%d players=%d assigned=%d}", that.BoardSize, that.Players, that.AssignedPlayer)
}

// Play announces a move. The host relays it unchanged to the other opponents.
type Play struct {
	Player int
	Row    int
	Col    int
}

func (Play) Kind() Kind {
	return KindPlay
}

func (that Play) fields() []int {
	return []int{that.Player, that.Row, that.Col}
}

func (that Play) String() string {
	return fmt.Sprintf("play{player=%d row=%d col=%d}", that.Player, that.Row, that.Col)
}
