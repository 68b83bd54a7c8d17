package bot

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

type fakeSeat struct {
	states chan entity.GameState

	mu        sync.Mutex
	plays     []entity.Position
	discovers int
	nexts     int
}

func newFakeSeat() *fakeSeat {
	return &fakeSeat{states: make(chan entity.GameState, 16)}
}

func (that *fakeSeat) Subscribe() (<-chan entity.GameState, func()) {
	return that.states, func() {}
}

func (that *fakeSeat) PlayAt(row, col int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.plays = append(that.plays, entity.Position{Row: row, Col: col})
	return nil
}

func (that *fakeSeat) DiscoverGame() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.discovers++
	return nil
}

func (that *fakeSeat) StartNextGame() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.nexts++
	return nil
}

func (that *fakeSeat) snapshot() ([]entity.Position, int, int) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]entity.Position(nil), that.plays...), that.discovers, that.nexts
}

func runBot(t *testing.T, b *Bot) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func inGame(localPlayer, playerTurn int, board [][]int) entity.GameState {
	return entity.GameState{
		Phase:       entity.PhaseInGame,
		LocalPlayer: localPlayer,
		PlayerTurn:  playerTurn,
		BoardSize:   len(board),
		Board:       board,
	}
}

func logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestChooseMove(t *testing.T) {
	t.Run("Picks the only free cell", func(t *testing.T) {
		state := inGame(1, 1, [][]int{{1, 2, 1}, {2, 0, 1}, {2, 1, 2}})

		pos, err := ChooseMove(rand.New(rand.NewPCG(1, 1)), state)

		require.NoError(t, err)
		assert.Equal(t, entity.Position{Row: 1, Col: 1}, pos)
	})

	t.Run("Fails on a full board", func(t *testing.T) {
		state := inGame(1, 1, [][]int{{1, 2, 1}, {2, 1, 1}, {2, 1, 2}})

		_, err := ChooseMove(rand.New(rand.NewPCG(1, 1)), state)

		require.ErrorIs(t, err, ErrNoAvailableMoves)
	})
}

func TestBot_Run(t *testing.T) {
	t.Run("Plays a free cell on its turn only", func(t *testing.T) {
		// Given: a bot seated as player 2
		seat := newFakeSeat()
		runBot(t, New(logger(), seat, WithSeed(5)))

		// When: it is first the opponent's turn and then the bot's
		seat.states <- inGame(2, 1, [][]int{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}})
		seat.states <- inGame(2, 2, [][]int{{1, 0, 0}, {0, 0, 0}, {0, 0, 0}})

		// Then: exactly one move is played and it is on a free cell
		require.Eventually(t, func() bool {
			plays, _, _ := seat.snapshot()
			return len(plays) == 1
		}, time.Second, 10*time.Millisecond)

		plays, _, _ := seat.snapshot()
		assert.NotEqual(t, entity.Position{Row: 0, Col: 0}, plays[0])
	})

	t.Run("Does not play twice on the same board", func(t *testing.T) {
		seat := newFakeSeat()
		runBot(t, New(logger(), seat))

		state := inGame(1, 1, [][]int{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}})
		seat.states <- state
		seat.states <- state

		assert.Never(t, func() bool {
			plays, _, _ := seat.snapshot()
			return len(plays) > 1
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("Moves again when a new round starts on the same board", func(t *testing.T) {
		// Given: a host side bot that opened round 1 as player 1
		seat := newFakeSeat()
		runBot(t, New(logger(), seat))

		empty := [][]int{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
		first := inGame(1, 1, empty)
		first.Round = 1
		seat.states <- first

		require.Eventually(t, func() bool {
			plays, _, _ := seat.snapshot()
			return len(plays) == 1
		}, time.Second, 10*time.Millisecond)

		// When: the round ends and the rematch puts it first again on an empty board
		seat.states <- entity.GameState{Phase: entity.PhaseGameOver, IsHost: true, Round: 1, IsOver: true}
		second := inGame(1, 1, empty)
		second.Round = 2
		seat.states <- second

		// Then: it opens round 2 as well
		require.Eventually(t, func() bool {
			plays, _, _ := seat.snapshot()
			return len(plays) == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Moves in a new round even when the game over snapshot was skipped", func(t *testing.T) {
		seat := newFakeSeat()
		runBot(t, New(logger(), seat))

		empty := [][]int{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
		first := inGame(1, 1, empty)
		first.Round = 4
		second := inGame(1, 1, empty)
		second.Round = 5

		seat.states <- first
		require.Eventually(t, func() bool {
			plays, _, _ := seat.snapshot()
			return len(plays) == 1
		}, time.Second, 10*time.Millisecond)

		seat.states <- second

		require.Eventually(t, func() bool {
			plays, _, _ := seat.snapshot()
			return len(plays) == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Auto join discovers when idle and asks for the next round", func(t *testing.T) {
		seat := newFakeSeat()
		runBot(t, New(logger(), seat, WithAutoJoin()))

		seat.states <- entity.Uninitialized()
		seat.states <- entity.GameState{Phase: entity.PhaseGameOver, IsOver: true}

		require.Eventually(t, func() bool {
			_, discovers, nexts := seat.snapshot()
			return discovers == 1 && nexts == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("Without auto join it only plays", func(t *testing.T) {
		seat := newFakeSeat()
		runBot(t, New(logger(), seat))

		seat.states <- entity.Uninitialized()

		assert.Never(t, func() bool {
			_, discovers, _ := seat.snapshot()
			return discovers > 0
		}, 100*time.Millisecond, 10*time.Millisecond)
	})
}
