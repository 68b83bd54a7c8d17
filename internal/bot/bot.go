// Package bot plays a session headlessly: it watches snapshots and picks a
// random free cell whenever it is the local player's turn.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

var ErrNoAvailableMoves = errors.New("no available moves")

type seat interface {
	Subscribe() (<-chan entity.GameState, func())
	PlayAt(row, col int) error
	DiscoverGame() error
	StartNextGame() error
}

type Bot struct {
	logger *slog.Logger
	seat   seat
	random *rand.Rand

	delay    time.Duration
	autoJoin bool
}

type Option func(*Bot)

// WithDelay waits before every move.
func WithDelay(delay time.Duration) Option {
	return func(that *Bot) {
		that.delay = delay
	}
}

// WithAutoJoin makes the bot look for a host whenever it is idle and ask for
// the next round when one ends.
func WithAutoJoin() Option {
	return func(that *Bot) {
		that.autoJoin = true
	}
}

func WithSeed(seed uint64) Option {
	return func(that *Bot) {
		that.random = rand.New(rand.NewPCG(seed, seed))
	}
}

func New(logger *slog.Logger, seat seat, opts ...Option) *Bot {
	that := &Bot{
		logger: logger.With("component", "bot"),
		seat:   seat,
		random: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint: gosec // it's ok
	}

	for _, opt := range opts {
		opt(that)
	}

	return that
}

// Run - plays until ctx is canceled or the session stops.
func (that *Bot) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")

	states, cancel := that.seat.Subscribe()
	defer cancel()

	var last played

	for {
		var state entity.GameState

		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-states:
			if !ok {
				return nil
			}
			state = s
		}

		if err := that.react(ctx, state, &last); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("bot failed to act", "phase", state.Phase, "error", err)
		}
	}
}

// played identifies the board the bot last moved on.
type played struct {
	round uint64
	free  int
}

// react - a republished snapshot of a board the bot already moved on is skipped.
func (that *Bot) react(ctx context.Context, state entity.GameState, last *played) error {
	switch {
	case state.IsLocalTurn():
		current := played{round: state.Round, free: len(state.FreeCells())}
		if current == *last {
			return nil
		}

		pos, err := ChooseMove(that.random, state)
		if err != nil {
			return err
		}

		if err = that.wait(ctx); err != nil {
			return err
		}

		*last = current
		if err = that.seat.PlayAt(pos.Row, pos.Col); err != nil {
			return fmt.Errorf("bot failed to make turn: %w", err)
		}

		that.logger.Debug("bot played", "round", state.Round, "player", state.LocalPlayer, "row", pos.Row, "col", pos.Col)
	case state.Phase == entity.PhaseInGame:
		*last = played{}
	case !that.autoJoin:
	case state.Phase == entity.PhaseIdle:
		if err := that.wait(ctx); err != nil {
			return err
		}
		return that.seat.DiscoverGame()
	case state.Phase == entity.PhaseGameOver && !state.IsHost:
		return that.seat.StartNextGame()
	}

	return nil
}

func (that *Bot) wait(ctx context.Context) error {
	if that.delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(that.delay):
		return nil
	}
}

// ChooseMove picks a random free cell of the snapshot board.
func ChooseMove(random *rand.Rand, state entity.GameState) (entity.Position, error) {
	free := state.FreeCells()
	if len(free) == 0 {
		return entity.Position{}, ErrNoAvailableMoves
	}

	return free[random.IntN(len(free))], nil
}
