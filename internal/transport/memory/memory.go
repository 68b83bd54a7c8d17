// Package memory is an in-process Transport. Every Transport joined to the
// same Network can discover and talk to the others, which makes it the
// transport of choice for tests and for local bot opponents.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport"
)

const eventBuffer = 256

type link struct {
	accepted map[string]bool
	open     bool
}

// Network is the shared medium the in-memory transports live on.
type Network struct {
	mu          sync.Mutex
	nodes       map[string]*Transport
	advertising map[string]bool
	discovering map[string]bool
	links       map[[2]string]*link
}

func NewNetwork() *Network {
	return &Network{
		nodes:       make(map[string]*Transport),
		advertising: make(map[string]bool),
		discovering: make(map[string]bool),
		links:       make(map[[2]string]*link),
	}
}

type delivery struct {
	to    *Transport
	event transport.Event
}

// Join registers a new endpoint. Its id is what peers see as EndpointID.
func (that *Network) Join(id string) *Transport {
	that.mu.Lock()
	defer that.mu.Unlock()

	node := &Transport{
		id:      id,
		network: that,
		events:  make(chan transport.Event, eventBuffer),
		quit:    make(chan struct{}),
	}
	that.nodes[id] = node

	return node
}

// Drop simulates a lost link: both sides of every connection of id get Disconnected.
func (that *Network) Drop(id string) {
	that.mu.Lock()
	var out []delivery
	for key, l := range that.links {
		if key[0] != id && key[1] != id {
			continue
		}
		delete(that.links, key)
		if !l.open {
			continue
		}
		out = append(out,
			that.event(key[0], transport.Event{Kind: transport.EventDisconnected, EndpointID: key[1]}),
			that.event(key[1], transport.Event{Kind: transport.EventDisconnected, EndpointID: key[0]}),
		)
	}
	that.mu.Unlock()

	deliver(out)
}

func linkKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}

	return [2]string{b, a}
}

// event must be called with mu held.
func (that *Network) event(to string, event transport.Event) delivery {
	return delivery{to: that.nodes[to], event: event}
}

func deliver(out []delivery) {
	for _, d := range out {
		if d.to != nil {
			d.to.deliver(d.event)
		}
	}
}

type Transport struct {
	id      string
	network *Network

	mu       sync.RWMutex
	closed   bool
	closeOne sync.Once
	events   chan transport.Event
	quit     chan struct{}
}

func (that *Transport) ID() string {
	return that.id
}

func (that *Transport) Events() <-chan transport.Event {
	return that.events
}

func (that *Transport) deliver(event transport.Event) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	if that.closed {
		return
	}

	select {
	case that.events <- event:
	case <-that.quit:
	}
}

func (that *Transport) Advertise(_ context.Context, _ string) error {
	net := that.network
	net.mu.Lock()

	net.advertising[that.id] = true

	var out []delivery
	for id := range net.discovering {
		if id != that.id {
			out = append(out, net.event(id, transport.Event{Kind: transport.EventEndpointFound, EndpointID: that.id}))
		}
	}
	net.mu.Unlock()

	deliver(out)

	return nil
}

func (that *Transport) Discover(_ context.Context) error {
	net := that.network
	net.mu.Lock()

	net.discovering[that.id] = true

	var out []delivery
	for id := range net.advertising {
		if id != that.id {
			out = append(out, net.event(that.id, transport.Event{Kind: transport.EventEndpointFound, EndpointID: id}))
		}
	}
	net.mu.Unlock()

	deliver(out)

	return nil
}

func (that *Transport) StopAdvertising(_ context.Context) {
	net := that.network
	net.mu.Lock()

	if !net.advertising[that.id] {
		net.mu.Unlock()
		return
	}
	delete(net.advertising, that.id)

	var out []delivery
	for id := range net.discovering {
		if id != that.id {
			out = append(out, net.event(id, transport.Event{Kind: transport.EventEndpointLost, EndpointID: that.id}))
		}
	}
	net.mu.Unlock()

	deliver(out)
}

func (that *Transport) StopDiscovery(_ context.Context) {
	net := that.network
	net.mu.Lock()
	defer net.mu.Unlock()

	delete(net.discovering, that.id)
}

func (that *Transport) RequestConnection(_ context.Context, _, endpointID string) error {
	net := that.network
	net.mu.Lock()

	if _, ok := net.nodes[endpointID]; !ok || endpointID == that.id {
		net.mu.Unlock()
		return fmt.Errorf("request connection to %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}

	key := linkKey(that.id, endpointID)
	if _, ok := net.links[key]; ok {
		net.mu.Unlock()
		return nil
	}
	net.links[key] = &link{accepted: make(map[string]bool)}

	out := []delivery{
		net.event(that.id, transport.Event{Kind: transport.EventConnectionInitiated, EndpointID: endpointID}),
		net.event(endpointID, transport.Event{Kind: transport.EventConnectionInitiated, EndpointID: that.id}),
	}
	net.mu.Unlock()

	deliver(out)

	return nil
}

// AcceptConnection - the connection opens once both sides accepted it.
func (that *Transport) AcceptConnection(_ context.Context, endpointID string) error {
	net := that.network
	net.mu.Lock()

	l, ok := net.links[linkKey(that.id, endpointID)]
	if !ok {
		net.mu.Unlock()
		return fmt.Errorf("accept connection from %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}

	l.accepted[that.id] = true

	var out []delivery
	if !l.open && l.accepted[endpointID] {
		l.open = true
		out = append(out,
			net.event(that.id, transport.Event{Kind: transport.EventConnectionResult, EndpointID: endpointID, Status: transport.StatusOK}),
			net.event(endpointID, transport.Event{Kind: transport.EventConnectionResult, EndpointID: that.id, Status: transport.StatusOK}),
		)
	}
	net.mu.Unlock()

	deliver(out)

	return nil
}

func (that *Transport) RejectConnection(_ context.Context, endpointID string) error {
	net := that.network
	net.mu.Lock()

	key := linkKey(that.id, endpointID)
	l, ok := net.links[key]
	if !ok || l.open {
		net.mu.Unlock()
		return fmt.Errorf("reject connection from %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}
	delete(net.links, key)

	out := []delivery{
		net.event(that.id, transport.Event{Kind: transport.EventConnectionResult, EndpointID: endpointID, Status: transport.StatusRejected}),
		net.event(endpointID, transport.Event{Kind: transport.EventConnectionResult, EndpointID: that.id, Status: transport.StatusRejected}),
	}
	net.mu.Unlock()

	deliver(out)

	return nil
}

func (that *Transport) Send(_ context.Context, endpointID string, payload []byte) error {
	net := that.network
	net.mu.Lock()

	l, ok := net.links[linkKey(that.id, endpointID)]
	if !ok || !l.open {
		net.mu.Unlock()
		return fmt.Errorf("send to %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}

	out := net.event(endpointID, transport.Event{
		Kind:       transport.EventPayloadReceived,
		EndpointID: that.id,
		Payload:    append([]byte(nil), payload...),
	})
	net.mu.Unlock()

	deliver([]delivery{out})

	return nil
}

// StopAllEndpoints - peers get Disconnected, the local side does not.
func (that *Transport) StopAllEndpoints(_ context.Context) {
	net := that.network
	net.mu.Lock()

	var out []delivery
	for key, l := range net.links {
		var peer string
		switch that.id {
		case key[0]:
			peer = key[1]
		case key[1]:
			peer = key[0]
		default:
			continue
		}

		delete(net.links, key)
		if l.open {
			out = append(out, net.event(peer, transport.Event{Kind: transport.EventDisconnected, EndpointID: that.id}))
		}
	}
	net.mu.Unlock()

	deliver(out)
}

// Close leaves the network and closes the event stream.
func (that *Transport) Close() error {
	ctx := context.Background()
	that.StopAdvertising(ctx)
	that.StopDiscovery(ctx)
	that.StopAllEndpoints(ctx)

	that.network.mu.Lock()
	delete(that.network.nodes, that.id)
	that.network.mu.Unlock()

	that.closeOne.Do(func() {
		close(that.quit)

		that.mu.Lock()
		defer that.mu.Unlock()

		that.closed = true
		close(that.events)
	})

	return nil
}
