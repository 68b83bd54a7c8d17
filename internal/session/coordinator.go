// Package session runs the peer-to-peer game session: the connection lifecycle,
// the host's player assignment and move relay, and the local copy of the board.
//
// All state is owned by one goroutine (Run). UI intents and transport events
// are funneled into it, outbound transport calls leave it through an ordered
// outbox so the loop never waits on the network.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport"
)

const commandBuffer = 64

type Coordinator struct {
	logger    *slog.Logger
	transport transport.Transport
	codec     protocol.Codec
	localID   string
	random    *rand.Rand
	boardOpts []entity.BoardOption

	commands chan command
	outbox   *opQueue
	done     chan struct{}

	publisher *publisher

	// owned by the loop goroutine
	phase       entity.Phase
	isHost      bool
	boardSize   int
	localPlayer int
	opponents   []string
	pending     string
	game        *tictactoe.Game
	round       uint64
	generation  uint64
}

type Option func(*Coordinator)

// WithLocalID sets the identity advertised to peers. Defaults to a random UUID.
func WithLocalID(id string) Option {
	return func(that *Coordinator) {
		that.localID = id
	}
}

// WithSeed makes the player permutation reproducible.
func WithSeed(seed uint64) Option {
	return func(that *Coordinator) {
		that.random = rand.New(rand.NewPCG(seed, seed))
	}
}

func WithCodec(codec protocol.Codec) Option {
	return func(that *Coordinator) {
		that.codec = codec
	}
}

func WithWinRule(rule entity.WinRule) Option {
	return func(that *Coordinator) {
		that.boardOpts = append(that.boardOpts, entity.WithWinRule(rule))
	}
}

func New(logger *slog.Logger, tr transport.Transport, opts ...Option) *Coordinator {
	that := &Coordinator{
		transport: tr,
		codec:     protocol.NewTextCodec(),
		localID:   uuid.NewString(),
		random:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint: gosec // not security sensitive

		commands:  make(chan command, commandBuffer),
		outbox:    newOpQueue(),
		done:      make(chan struct{}),
		publisher: newPublisher(),

		phase:     entity.PhaseIdle,
		opponents: []string{},
	}

	for _, opt := range opts {
		opt(that)
	}

	that.logger = logger.With("component", "session", "local_id", that.localID)

	return that
}

func (that *Coordinator) LocalID() string {
	return that.localID
}

// Run - serves the session until ctx is canceled or the transport event stream ends.
func (that *Coordinator) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	loopCtx, stopOutbox := context.WithCancel(groupCtx)

	group.Go(func() error {
		defer stopOutbox()
		return that.runLoop(loopCtx)
	})

	group.Go(func() error {
		return that.runOutbox(loopCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("session stopped: %w", err)
	}

	return nil
}

func (that *Coordinator) runLoop(ctx context.Context) error {
	log := that.logger.With("method", "runLoop")
	defer close(that.done)

	events := that.transport.Events()

	for {
		select {
		case <-ctx.Done():
			log.Info("session loop stopped")
			that.shutdown()
			return nil
		case cmd := <-that.commands:
			that.handleCommand(cmd)
		case event, ok := <-events:
			if !ok {
				log.Info("transport event stream closed")
				that.shutdown()
				return nil
			}
			that.handleEvent(event)
		}
	}
}

func (that *Coordinator) enqueue(cmd command) error {
	select {
	case <-that.done:
		return apperror.ErrSessionClosed
	default:
	}

	select {
	case that.commands <- cmd:
		return nil
	case <-that.done:
		return apperror.ErrSessionClosed
	}
}

// HostGame - starts advertising a game of the given board size.
func (that *Coordinator) HostGame(boardSize int) error {
	if err := entity.ValidateConfiguration(boardSize, entity.MinPlayers); err != nil {
		return err
	}

	return that.enqueue(command{kind: cmdHost, boardSize: boardSize})
}

// DiscoverGame - starts looking for a host and joins the first one found.
func (that *Coordinator) DiscoverGame() error {
	return that.enqueue(command{kind: cmdDiscover})
}

// StartGame - assigns player numbers and starts a round. Host only, needs an opponent.
func (that *Coordinator) StartGame() error {
	return that.enqueue(command{kind: cmdStart})
}

// PlayAt - plays the local player's move. Out of turn or occupied cells are ignored.
func (that *Coordinator) PlayAt(row, col int) error {
	return that.enqueue(command{kind: cmdPlay, position: entity.Position{Row: row, Col: col}})
}

// StartNextGame - host restarts immediately, a peer waits for the host's next round.
func (that *Coordinator) StartNextGame() error {
	return that.enqueue(command{kind: cmdNext})
}

// LeaveSession - tears everything down and returns to idle.
func (that *Coordinator) LeaveSession() error {
	return that.enqueue(command{kind: cmdLeave})
}

// Snapshot returns the latest published state.
func (that *Coordinator) Snapshot() entity.GameState {
	return that.publisher.snapshot()
}

// Subscribe delivers the current state and every later one. Call cancel to stop.
func (that *Coordinator) Subscribe() (<-chan entity.GameState, func()) {
	return that.publisher.subscribe()
}

func (that *Coordinator) publish() {
	state := entity.GameState{
		Phase:       that.phase,
		IsHost:      that.isHost,
		LocalPlayer: that.localPlayer,
		BoardSize:   that.boardSize,
		Opponents:   append([]string{}, that.opponents...),
	}

	if that.game != nil {
		state.Round = that.round
		state.PlayerTurn = that.game.PlayerTurn()
		state.PlayerWon = that.game.PlayerWon()
		state.IsOver = that.game.IsOver()
		state.BoardSize = that.game.BoardSize()
		state.Board = that.game.Board()
	}

	that.publisher.publish(state)
}
