package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
)

const (
	MinBoardSize = 3
	MaxBoardSize = 6
	MinPlayers   = 2

	EmptyCell = 0
	NoWinner  = 0
)

// Position addresses a single cell, zero based.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Evaluation is the result of scanning a board after a move.
type Evaluation struct {
	Winner int  `json:"winner"`
	IsOver bool `json:"is_over"`
}

// Board is a size x size grid of player numbers. A cell never changes once it is set.
type Board struct {
	size    int
	players int
	cells   [][]int
	rule    WinRule
}

type BoardOption func(*Board)

// WithWinRule replaces the default full line rule.
func WithWinRule(rule WinRule) BoardOption {
	return func(board *Board) {
		board.rule = rule
	}
}

// ValidateConfiguration - checks board size and player count bounds.
func ValidateConfiguration(size, players int) error {
	if size < MinBoardSize || size > MaxBoardSize {
		return fmt.Errorf("%w: board size %d", apperror.ErrInvalidConfiguration, size)
	}

	if players < MinPlayers {
		return fmt.Errorf("%w: player count %d", apperror.ErrInvalidConfiguration, players)
	}

	return nil
}

// NewBoard - allocates an empty board.
func NewBoard(size, players int, opts ...BoardOption) (*Board, error) {
	if err := ValidateConfiguration(size, players); err != nil {
		return nil, err
	}

	cells := make([][]int, size)
	for row := range cells {
		cells[row] = make([]int, size)
	}

	board := &Board{
		size:    size,
		players: players,
		cells:   cells,
		rule:    FullLineRule{},
	}

	for _, opt := range opts {
		opt(board)
	}

	return board, nil
}

func (that *Board) Size() int {
	return that.size
}

func (that *Board) Players() int {
	return that.players
}

func (that *Board) contains(pos Position) bool {
	return pos.Row >= 0 && pos.Row < that.size && pos.Col >= 0 && pos.Col < that.size
}

// ApplyMove - marks the cell for the player. Turn order is the caller's concern.
func (that *Board) ApplyMove(player int, pos Position) error {
	if !that.contains(pos) {
		return fmt.Errorf("%w: [%d,%d] on %dx%d", apperror.ErrOutOfBounds, pos.Row, pos.Col, that.size, that.size)
	}

	if player < 1 || player > that.players {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidPlayer, player)
	}

	if that.cells[pos.Row][pos.Col] != EmptyCell {
		return apperror.ErrCellOccupied
	}

	that.cells[pos.Row][pos.Col] = player

	return nil
}

// IsCellOccupied reports false for positions outside the board.
func (that *Board) IsCellOccupied(pos Position) bool {
	if !that.contains(pos) {
		return false
	}

	return that.cells[pos.Row][pos.Col] != EmptyCell
}

// Evaluate - finds the winner, a tie, or an ongoing game.
func (that *Board) Evaluate() Evaluation {
	if winner := that.rule.Winner(that.cells); winner != NoWinner {
		return Evaluation{Winner: winner, IsOver: true}
	}

	// the game will continue until all the cells are full
	for _, row := range that.cells {
		for _, cell := range row {
			if cell == EmptyCell {
				return Evaluation{Winner: NoWinner, IsOver: false}
			}
		}
	}

	return Evaluation{Winner: NoWinner, IsOver: true}
}

// Cells returns a copy of the grid.
func (that *Board) Cells() [][]int {
	return CopyCells(that.cells)
}

func CopyCells(cells [][]int) [][]int {
	if cells == nil {
		return nil
	}

	out := make([][]int, len(cells))
	for row := range cells {
		out[row] = append([]int(nil), cells[row]...)
	}

	return out
}
