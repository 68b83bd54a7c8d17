package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

const firstPlayer = 1

// Game is one round: a board plus the turn cursor and the last evaluation.
type Game struct {
	board      *entity.Board
	playerTurn int
	result     entity.Evaluation
}

func NewGame(boardSize, players int, opts ...entity.BoardOption) (*Game, error) {
	board, err := entity.NewBoard(boardSize, players, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}

	return &Game{
		board:      board,
		playerTurn: firstPlayer,
		result:     board.Evaluate(),
	}, nil
}

// MakeTurn - applies a move for player without checking whose turn it is.
// The turn always rotates after an accepted move, even the last one.
func (that *Game) MakeTurn(player int, pos entity.Position) error {
	if that.result.IsOver {
		return apperror.ErrGameFinished
	}

	if err := that.board.ApplyMove(player, pos); err != nil {
		return fmt.Errorf("invalid turn: %w", err)
	}

	that.result = that.board.Evaluate()
	that.playerTurn = nextPlayer(that.playerTurn, that.board.Players())

	return nil
}

// CanPlay - checks that a local move by player would be accepted.
func (that *Game) CanPlay(player int, pos entity.Position) error {
	switch {
	case that.result.IsOver:
		return apperror.ErrGameFinished
	case that.playerTurn != player:
		return apperror.ErrNotYourTurn
	case that.board.IsCellOccupied(pos):
		return apperror.ErrCellOccupied
	}

	return nil
}

func nextPlayer(current, players int) int {
	return current%players + 1
}

func (that *Game) PlayerTurn() int {
	return that.playerTurn
}

func (that *Game) PlayerWon() int {
	return that.result.Winner
}

func (that *Game) IsOver() bool {
	return that.result.IsOver
}

func (that *Game) BoardSize() int {
	return that.board.Size()
}

func (that *Game) Players() int {
	return that.board.Players()
}

func (that *Game) Board() [][]int {
	return that.board.Cells()
}
