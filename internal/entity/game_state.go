package entity

// Phase is the connection lifecycle state of a session.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseHosting     Phase = "hosting"
	PhaseDiscovering Phase = "discovering"
	PhaseInGame      Phase = "in_game"
	PhaseGameOver    Phase = "game_over"
)

// GameState is the published session snapshot. Round counts the rounds this session
// has started and never repeats, even across leave and re-host. A new value is built for every change,
// consumers must not modify it.
type GameState struct {
	Phase       Phase    `json:"phase"`
	Round       uint64   `json:"round"`
	IsHost      bool     `json:"is_host"`
	LocalPlayer int      `json:"local_player"`
	PlayerTurn  int      `json:"player_turn"`
	PlayerWon   int      `json:"player_won"`
	IsOver      bool     `json:"is_over"`
	BoardSize   int      `json:"board_size"`
	Board       [][]int  `json:"board"`
	Opponents   []string `json:"opponents"`
}

// Uninitialized is the snapshot of an idle session.
func Uninitialized() GameState {
	return GameState{
		Phase:     PhaseIdle,
		Opponents: []string{},
	}
}

func (that GameState) IsLocalTurn() bool {
	return that.Phase == PhaseInGame && that.LocalPlayer != 0 && that.LocalPlayer == that.PlayerTurn
}

// FreeCells lists the empty positions of the snapshot board.
func (that GameState) FreeCells() []Position {
	var free []Position

	for row := range that.Board {
		for col, cell := range that.Board[row] {
			if cell == EmptyCell {
				free = append(free, Position{Row: row, Col: col})
			}
		}
	}

	return free
}
