package session

import (
	"sync"
	"sync/atomic"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

const subscriberBuffer = 16

// publisher fans snapshots out to subscribers. Delivery is latest-wins: a slow
// subscriber loses older snapshots, never the newest one.
type publisher struct {
	current atomic.Pointer[entity.GameState]

	mu          sync.Mutex
	nextID      int
	subscribers map[int]chan entity.GameState
}

func newPublisher() *publisher {
	p := &publisher{subscribers: make(map[int]chan entity.GameState)}
	initial := entity.Uninitialized()
	p.current.Store(&initial)

	return p
}

func (that *publisher) snapshot() entity.GameState {
	return *that.current.Load()
}

func (that *publisher) publish(state entity.GameState) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.current.Store(&state)

	for _, ch := range that.subscribers {
		offer(ch, state)
	}
}

func (that *publisher) subscribe() (<-chan entity.GameState, func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	id := that.nextID
	that.nextID++

	ch := make(chan entity.GameState, subscriberBuffer)
	ch <- *that.current.Load()
	that.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			that.mu.Lock()
			defer that.mu.Unlock()

			delete(that.subscribers, id)
			close(ch)
		})
	}

	return ch, cancel
}

func offer(ch chan entity.GameState, state entity.GameState) {
	for {
		select {
		case ch <- state:
			return
		default:
		}

		// full: drop the oldest snapshot and retry
		select {
		case <-ch:
		default:
		}
	}
}
