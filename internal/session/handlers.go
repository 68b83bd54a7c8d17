package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport"
)

type commandKind int

const (
	cmdHost commandKind = iota + 1
	cmdDiscover
	cmdStart
	cmdPlay
	cmdNext
	cmdLeave

	// completions of asynchronous transport calls
	cmdAdvertised
	cmdDiscoveryStarted
	cmdRequestFailed
)

type command struct {
	kind       commandKind
	boardSize  int
	position   entity.Position
	generation uint64
	endpointID string
	err        error
}

func (that *Coordinator) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdHost:
		that.hostGame(cmd.boardSize)
	case cmdDiscover:
		that.discoverGame()
	case cmdStart:
		that.hostNewGame()
	case cmdPlay:
		that.playLocal(cmd.position)
	case cmdNext:
		that.nextGame()
	case cmdLeave:
		that.logger.Info("leaving session")
		that.reset()
	case cmdAdvertised:
		that.onAdvertised(cmd)
	case cmdDiscoveryStarted:
		that.onDiscoveryStarted(cmd)
	case cmdRequestFailed:
		that.onRequestFailed(cmd)
	}
}

func (that *Coordinator) handleEvent(event transport.Event) {
	log := that.logger.With("method", "handleEvent", "event", event.Kind.String(), "endpoint", event.EndpointID)
	log.Debug("transport event")

	switch event.Kind {
	case transport.EventEndpointFound:
		that.onEndpointFound(event.EndpointID)
	case transport.EventEndpointLost:
		log.Debug("endpoint lost")
	case transport.EventConnectionInitiated:
		that.onConnectionInitiated(event.EndpointID)
	case transport.EventConnectionResult:
		that.onConnectionResult(event.EndpointID, event.Status)
	case transport.EventDisconnected:
		that.onDisconnected(event.EndpointID)
	case transport.EventPayloadReceived:
		that.onPayload(event.EndpointID, event.Payload)
	default:
		log.Warn("unknown transport event")
	}
}

// complete posts the outcome of an outbound call back into the loop.
func (that *Coordinator) complete(cmd command) {
	go func() {
		select {
		case that.commands <- cmd:
		case <-that.done:
		}
	}()
}

func (that *Coordinator) hostGame(boardSize int) {
	log := that.logger.With("method", "hostGame")

	if that.phase != entity.PhaseIdle {
		log.Debug("host intent ignored", "phase", that.phase)
		return
	}

	that.generation++
	generation := that.generation

	that.phase = entity.PhaseHosting
	that.isHost = true
	that.boardSize = boardSize
	that.publish()

	log.Info("start advertising", "board_size", boardSize)

	that.schedule(outboundOp{
		name: "advertise",
		run: func(ctx context.Context) error {
			err := that.transport.Advertise(ctx, that.localID)
			that.complete(command{kind: cmdAdvertised, generation: generation, err: err})
			return err
		},
	})
}

func (that *Coordinator) onAdvertised(cmd command) {
	if cmd.generation != that.generation || that.phase != entity.PhaseHosting {
		return
	}

	if cmd.err != nil {
		that.logger.Warn("unable to start advertising", "error", cmd.err)
		that.reset()
		return
	}

	that.logger.Info("advertising")
}

func (that *Coordinator) discoverGame() {
	log := that.logger.With("method", "discoverGame")

	if that.phase != entity.PhaseIdle {
		log.Debug("discover intent ignored", "phase", that.phase)
		return
	}

	that.generation++
	generation := that.generation

	that.phase = entity.PhaseDiscovering
	that.isHost = false
	that.publish()

	log.Info("start discovering")

	that.schedule(outboundOp{
		name: "discover",
		run: func(ctx context.Context) error {
			err := that.transport.Discover(ctx)
			that.complete(command{kind: cmdDiscoveryStarted, generation: generation, err: err})
			return err
		},
	})
}

func (that *Coordinator) onDiscoveryStarted(cmd command) {
	if cmd.generation != that.generation || that.phase != entity.PhaseDiscovering {
		return
	}

	if cmd.err != nil {
		that.logger.Warn("unable to start discovering", "error", cmd.err)
		that.reset()
		return
	}

	that.logger.Info("discovering")
}

// onEndpointFound - the first host found is the one we join.
func (that *Coordinator) onEndpointFound(endpointID string) {
	log := that.logger.With("method", "onEndpointFound", "endpoint", endpointID)

	if that.isHost || that.phase != entity.PhaseDiscovering || that.game != nil {
		return
	}

	if len(that.opponents) > 0 || that.pending != "" {
		log.Debug("already joining a host")
		return
	}

	that.pending = endpointID
	generation := that.generation

	log.Info("requesting connection")

	that.schedule(outboundOp{
		name:       "request_connection",
		endpointID: endpointID,
		run: func(ctx context.Context) error {
			err := that.transport.RequestConnection(ctx, that.localID, endpointID)
			if err != nil {
				that.complete(command{kind: cmdRequestFailed, generation: generation, endpointID: endpointID, err: err})
			}
			return err
		},
	})
}

func (that *Coordinator) onRequestFailed(cmd command) {
	if cmd.generation != that.generation || cmd.endpointID != that.pending {
		return
	}

	that.logger.Warn("failed to request the connection", "endpoint", cmd.endpointID, "error", cmd.err)
	that.pending = ""
}

// acceptsConnections - opponents may join only before the first round starts.
func (that *Coordinator) acceptsConnections(endpointID string) bool {
	switch {
	case that.game != nil:
		return false
	case that.isHost:
		return that.phase == entity.PhaseHosting
	default:
		return that.phase == entity.PhaseDiscovering && endpointID == that.pending
	}
}

func (that *Coordinator) onConnectionInitiated(endpointID string) {
	log := that.logger.With("method", "onConnectionInitiated", "endpoint", endpointID)

	if !that.acceptsConnections(endpointID) {
		log.Info("rejecting connection", "phase", that.phase)
		that.schedule(outboundOp{
			name:       "reject_connection",
			endpointID: endpointID,
			run: func(ctx context.Context) error {
				return that.transport.RejectConnection(ctx, endpointID)
			},
		})
		return
	}

	log.Info("accepting connection")
	that.schedule(outboundOp{
		name:       "accept_connection",
		endpointID: endpointID,
		run: func(ctx context.Context) error {
			return that.transport.AcceptConnection(ctx, endpointID)
		},
	})
}

func (that *Coordinator) onConnectionResult(endpointID string, status transport.Status) {
	log := that.logger.With("method", "onConnectionResult", "endpoint", endpointID, "status", status.String())

	if status != transport.StatusOK {
		log.Info("connection failed")
		if endpointID == that.pending {
			that.pending = ""
		}
		return
	}

	if !that.acceptsConnections(endpointID) || slices.Contains(that.opponents, endpointID) {
		log.Warn("unexpected connection ignored", "phase", that.phase)
		return
	}

	if !that.isHost {
		that.pending = ""
		that.schedule(outboundOp{
			name: "stop_discovery",
			run: func(ctx context.Context) error {
				that.transport.StopDiscovery(ctx)
				return nil
			},
		})
	}

	that.opponents = append(that.opponents, endpointID)
	log.Info("added opponent", "opponents", len(that.opponents))

	that.publish()
}

func (that *Coordinator) onDisconnected(endpointID string) {
	if that.phase == entity.PhaseIdle && len(that.opponents) == 0 {
		return
	}

	that.logger.Info("disconnected, ending session", "endpoint", endpointID)
	that.reset()
}

// hostNewGame - the host draws a random permutation of 1..P, keeps the first
// number and hands the rest out in opponent order.
func (that *Coordinator) hostNewGame() {
	log := that.logger.With("method", "hostNewGame")

	if !that.isHost || (that.phase != entity.PhaseHosting && that.phase != entity.PhaseGameOver) {
		log.Debug("start intent ignored", "phase", that.phase, "is_host", that.isHost)
		return
	}

	if len(that.opponents) == 0 {
		log.Debug("start intent ignored, no opponents")
		return
	}

	that.schedule(outboundOp{
		name: "stop_advertising",
		run: func(ctx context.Context) error {
			that.transport.StopAdvertising(ctx)
			return nil
		},
	})

	players := AssignPlayers(that.random, len(that.opponents)+1)

	for i, opponent := range that.opponents {
		that.send(opponent, protocol.NewGame{
			BoardSize:      that.boardSize,
			Players:        len(players),
			AssignedPlayer: players[i+1],
		})
	}

	if err := that.newGame(players[0], that.boardSize, len(players)); err != nil {
		log.Error("failed to start game", "error", err)
	}
}

// AssignPlayers returns a random permutation of 1..players.
func AssignPlayers(random interface{ Perm(n int) []int }, players int) []int {
	perm := random.Perm(players)
	for i := range perm {
		perm[i]++
	}

	return perm
}

func (that *Coordinator) newGame(localPlayer, boardSize, players int) error {
	game, err := tictactoe.NewGame(boardSize, players, that.boardOpts...)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}

	that.game = game
	that.round++
	that.localPlayer = localPlayer
	that.boardSize = boardSize
	that.phase = entity.PhaseInGame

	that.logger.Info("starting new game", "round", that.round, "local_player", localPlayer, "board_size", boardSize, "players", players)
	that.publish()

	return nil
}

func (that *Coordinator) nextGame() {
	if that.phase != entity.PhaseGameOver {
		that.logger.Debug("next game intent ignored", "phase", that.phase)
		return
	}

	if that.isHost {
		that.hostNewGame()
		return
	}

	that.phase = entity.PhaseDiscovering
	that.publish()
}

func (that *Coordinator) playLocal(pos entity.Position) {
	log := that.logger.With("method", "playLocal", "row", pos.Row, "col", pos.Col)

	if that.phase != entity.PhaseInGame || that.game == nil {
		log.Debug("play intent ignored", "phase", that.phase)
		return
	}

	if err := that.game.CanPlay(that.localPlayer, pos); err != nil {
		log.Debug("play intent ignored", "error", err)
		return
	}

	if err := that.applyMove(that.localPlayer, pos); err != nil {
		log.Debug("play intent ignored", "error", err)
		return
	}

	msg := protocol.Play{Player: that.localPlayer, Row: pos.Row, Col: pos.Col}
	for _, opponent := range that.opponents {
		that.send(opponent, msg)
	}
}

// applyMove - mutates the board, moves to game over when the round ended, publishes.
func (that *Coordinator) applyMove(player int, pos entity.Position) error {
	if err := that.game.MakeTurn(player, pos); err != nil {
		return err
	}

	that.logger.Debug("player played", "player", player, "row", pos.Row, "col", pos.Col)

	if that.game.IsOver() {
		that.phase = entity.PhaseGameOver
		that.logger.Info("game over", "player_won", that.game.PlayerWon())
	}

	that.publish()

	return nil
}

func (that *Coordinator) onPayload(endpointID string, payload []byte) {
	log := that.logger.With("method", "onPayload", "endpoint", endpointID)

	if !slices.Contains(that.opponents, endpointID) {
		log.Warn("dropping message", "error", apperror.ErrEndpointUnknown)
		return
	}

	msg, err := that.codec.Decode(payload)
	if err != nil {
		log.Warn("dropping message", "error", err)
		return
	}

	log.Debug("received message", "message", msg)

	switch m := msg.(type) {
	case protocol.NewGame:
		that.onNewGame(m)
	case protocol.Play:
		that.onPlay(endpointID, m, payload)
	default:
		log.Warn("dropping message", "error", apperror.ErrUnknownMessage)
	}
}

func (that *Coordinator) onNewGame(msg protocol.NewGame) {
	log := that.logger.With("method", "onNewGame")

	if that.isHost {
		log.Warn("host ignores game assignments")
		return
	}

	switch that.phase {
	case entity.PhaseDiscovering, entity.PhaseInGame, entity.PhaseGameOver:
	default:
		log.Debug("game assignment ignored", "phase", that.phase)
		return
	}

	if err := validateAssignment(msg); err != nil {
		log.Warn("dropping game assignment", "error", err)
		return
	}

	if err := that.newGame(msg.AssignedPlayer, msg.BoardSize, msg.Players); err != nil {
		log.Warn("dropping game assignment", "error", err)
	}
}

func validateAssignment(msg protocol.NewGame) error {
	if err := entity.ValidateConfiguration(msg.BoardSize, msg.Players); err != nil {
		return err
	}

	if msg.AssignedPlayer < 1 || msg.AssignedPlayer > msg.Players {
		return fmt.Errorf("%w: assigned player %d of %d", apperror.ErrInvalidConfiguration, msg.AssignedPlayer, msg.Players)
	}

	return nil
}

// onPlay applies a peer's move without checking the turn, the sender is trusted.
// The host forwards it as received to every other opponent.
func (that *Coordinator) onPlay(endpointID string, msg protocol.Play, payload []byte) {
	log := that.logger.With("method", "onPlay", "endpoint", endpointID)

	if that.phase != entity.PhaseInGame || that.game == nil {
		log.Debug("move ignored", "phase", that.phase, "message", msg)
		return
	}

	pos := entity.Position{Row: msg.Row, Col: msg.Col}
	if err := that.applyMove(msg.Player, pos); err != nil {
		if errors.Is(err, apperror.ErrCellOccupied) {
			log.Warn("move on occupied cell dropped", "message", msg)
			return
		}
		log.Warn("move dropped", "message", msg, "error", err)
		return
	}

	if !that.isHost {
		return
	}

	for _, opponent := range that.opponents {
		if opponent == endpointID {
			continue
		}
		that.sendRaw(opponent, payload)
	}
}

// reset - back to idle: stop the transport, forget the role, opponents and board.
func (that *Coordinator) reset() {
	that.generation++

	if that.phase != entity.PhaseIdle || len(that.opponents) > 0 {
		that.stopTransport()
	}

	that.phase = entity.PhaseIdle
	that.isHost = false
	that.boardSize = 0
	that.localPlayer = 0
	that.opponents = []string{}
	that.pending = ""
	that.game = nil

	that.publish()
}
