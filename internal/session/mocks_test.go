package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport"
)

const waitTimeout = 2 * time.Second

type sentPayload struct {
	endpointID string
	payload    string
}

type mockTransport struct {
	mock.Mock

	events chan transport.Event
	sent   chan sentPayload

	mu      sync.Mutex
	methods map[string]int
}

// newMockTransport expects the stop calls any teardown may issue.
func newMockTransport(t *testing.T) *mockTransport {
	t.Helper()

	m := &mockTransport{
		events:  make(chan transport.Event, 64),
		sent:    make(chan sentPayload, 64),
		methods: make(map[string]int),
	}
	m.Test(t)

	m.On("StopAdvertising", mock.Anything).Maybe()
	m.On("StopDiscovery", mock.Anything).Maybe()
	m.On("StopAllEndpoints", mock.Anything).Maybe()

	return m
}

func (m *mockTransport) Advertise(ctx context.Context, localID string) error {
	m.record("Advertise")
	return m.Called(ctx, localID).Error(0)
}

func (m *mockTransport) Discover(ctx context.Context) error {
	m.record("Discover")
	return m.Called(ctx).Error(0)
}

func (m *mockTransport) RequestConnection(ctx context.Context, localID, endpointID string) error {
	m.record("RequestConnection")
	return m.Called(ctx, localID, endpointID).Error(0)
}

func (m *mockTransport) AcceptConnection(ctx context.Context, endpointID string) error {
	m.record("AcceptConnection")
	return m.Called(ctx, endpointID).Error(0)
}

func (m *mockTransport) RejectConnection(ctx context.Context, endpointID string) error {
	m.record("RejectConnection")
	return m.Called(ctx, endpointID).Error(0)
}

func (m *mockTransport) Send(ctx context.Context, endpointID string, payload []byte) error {
	m.record("Send")
	args := m.Called(ctx, endpointID, payload)
	m.sent <- sentPayload{endpointID: endpointID, payload: string(payload)}

	return args.Error(0)
}

func (m *mockTransport) StopAdvertising(ctx context.Context) {
	m.record("StopAdvertising")
	m.Called(ctx)
}

func (m *mockTransport) StopDiscovery(ctx context.Context) {
	m.record("StopDiscovery")
	m.Called(ctx)
}

func (m *mockTransport) StopAllEndpoints(ctx context.Context) {
	m.record("StopAllEndpoints")
	m.Called(ctx)
}

func (m *mockTransport) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.methods[method]++
}

// called reports whether method was invoked, safe to use while the coordinator runs.
func (m *mockTransport) called(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.methods[method] > 0
}

func (m *mockTransport) Events() <-chan transport.Event {
	return m.events
}

func (m *mockTransport) nextSent(t *testing.T) sentPayload {
	t.Helper()

	select {
	case sent := <-m.sent:
		return sent
	case <-time.After(waitTimeout):
		t.Fatal("nothing was sent")
		return sentPayload{}
	}
}

func (m *mockTransport) assertNothingSent(t *testing.T) {
	t.Helper()

	select {
	case sent := <-m.sent:
		t.Fatalf("unexpected send %+v", sent)
	case <-time.After(100 * time.Millisecond):
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// startCoordinator runs c until the test ends.
func startCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})
}

// waitFor reads snapshots until one satisfies cond.
func waitFor(t *testing.T, c *Coordinator, cond func(entity.GameState) bool) entity.GameState {
	t.Helper()

	states, cancel := c.Subscribe()
	defer cancel()

	timeout := time.After(waitTimeout)
	for {
		select {
		case state := <-states:
			if cond(state) {
				return state
			}
		case <-timeout:
			t.Fatalf("state not reached, last snapshot %+v", c.Snapshot())
			return entity.GameState{}
		}
	}
}

func inPhase(phase entity.Phase) func(entity.GameState) bool {
	return func(state entity.GameState) bool {
		return state.Phase == phase
	}
}
