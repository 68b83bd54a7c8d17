package session

import (
	"context"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/protocol"
)

const shutdownTimeout = 2 * time.Second

// outboundOp is one transport call issued by the loop and executed in order.
type outboundOp struct {
	name       string
	endpointID string
	run        func(ctx context.Context) error
}

// opQueue is an unbounded FIFO of outbound calls. push never blocks the loop.
type opQueue struct {
	mu    sync.Mutex
	ops   []outboundOp
	ready chan struct{}
}

func newOpQueue() *opQueue {
	return &opQueue{ready: make(chan struct{}, 1)}
}

func (that *opQueue) push(op outboundOp) {
	that.mu.Lock()
	that.ops = append(that.ops, op)
	that.mu.Unlock()

	select {
	case that.ready <- struct{}{}:
	default:
	}
}

func (that *opQueue) pop() (outboundOp, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if len(that.ops) == 0 {
		return outboundOp{}, false
	}

	op := that.ops[0]
	that.ops[0] = outboundOp{}
	that.ops = that.ops[1:]

	return op, true
}

func (that *opQueue) size() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.ops)
}

func (that *Coordinator) runOutbox(ctx context.Context) error {
	log := that.logger.With("method", "runOutbox")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-that.outbox.ready:
		}

		for op, ok := that.outbox.pop(); ok; op, ok = that.outbox.pop() {
			if ctx.Err() != nil {
				return nil
			}

			if err := op.run(ctx); err != nil {
				log.Warn("transport call failed", "op", op.name, "endpoint", op.endpointID, "error", err)
			}
		}
	}
}

// schedule queues op without waiting for the network.
func (that *Coordinator) schedule(op outboundOp) {
	that.outbox.push(op)
}

func (that *Coordinator) send(endpointID string, msg protocol.Message) {
	payload, err := that.codec.Encode(msg)
	if err != nil {
		that.logger.Error("failed to encode message", "message", msg, "error", err)
		return
	}

	that.logger.Debug("sending message", "message", msg, "endpoint", endpointID)
	that.sendRaw(endpointID, payload)
}

func (that *Coordinator) sendRaw(endpointID string, payload []byte) {
	that.schedule(outboundOp{
		name:       "send",
		endpointID: endpointID,
		run: func(ctx context.Context) error {
			return that.transport.Send(ctx, endpointID, payload)
		},
	})
}

func (that *Coordinator) stopTransport() {
	that.schedule(outboundOp{
		name: "stop",
		run: func(ctx context.Context) error {
			that.transport.StopAdvertising(ctx)
			that.transport.StopDiscovery(ctx)
			that.transport.StopAllEndpoints(ctx)
			return nil
		},
	})
}

// shutdown runs on loop exit, when the outbox is no longer drained.
func (that *Coordinator) shutdown() {
	if that.phase == entity.PhaseIdle && len(that.opponents) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	that.transport.StopAdvertising(ctx)
	that.transport.StopDiscovery(ctx)
	that.transport.StopAllEndpoints(ctx)
}
