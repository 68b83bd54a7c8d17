package entity

// WinRule decides the winner of a square grid, or NoWinner.
type WinRule interface {
	Winner(cells [][]int) int
}

// FullLineRule wins with a complete row, column, main diagonal or anti-diagonal
// of one player's number. It works for any board size and player count.
type FullLineRule struct{}

func (FullLineRule) Winner(cells [][]int) int {
	size := len(cells)

	for row := 0; row < size; row++ {
		if winner := lineOwner(cells, row, 0, 0, 1); winner != NoWinner {
			return winner
		}
	}

	for col := 0; col < size; col++ {
		if winner := lineOwner(cells, 0, col, 1, 0); winner != NoWinner {
			return winner
		}
	}

	if winner := lineOwner(cells, 0, 0, 1, 1); winner != NoWinner {
		return winner
	}

	return lineOwner(cells, 0, size-1, 1, -1)
}

// lineOwner walks size cells from (row, col) in direction (dRow, dCol).
func lineOwner(cells [][]int, row, col, dRow, dCol int) int {
	size := len(cells)
	if size == 0 {
		return NoWinner
	}

	first := cells[row][col]
	if first == EmptyCell {
		return NoWinner
	}

	for step := 1; step < size; step++ {
		if cells[row+step*dRow][col+step*dCol] != first {
			return NoWinner
		}
	}

	return first
}
