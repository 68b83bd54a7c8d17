// Package redis carries sessions between processes over Redis Pub/Sub.
//
// Advertised hosts live in the "<service>:hosts" set and are announced on
// "<service>:announce" as "+id" or "-id". Every endpoint listens on its own
// "<service>:inbox:<id>" channel for JSON envelopes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport"
)

const eventBuffer = 256

const (
	envelopeConnect    = "connect"
	envelopeAccept     = "accept"
	envelopeReject     = "reject"
	envelopePayload    = "payload"
	envelopeDisconnect = "disconnect"
)

type envelope struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	Payload []byte `json:"payload,omitempty"`
}

type link struct {
	localAccepted  bool
	remoteAccepted bool
	open           bool
}

type Transport struct {
	logger    *slog.Logger
	client    *redis.Client
	serviceID string
	id        string

	pubsub *redis.PubSub
	events chan transport.Event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	emitMu sync.RWMutex
	closed bool

	mu          sync.Mutex
	advertising bool
	discovering bool
	links       map[string]*link
}

// New - subscribes to the endpoint inbox and starts dispatching incoming envelopes.
func New(ctx context.Context, logger *slog.Logger, client *redis.Client, serviceID, id string) (*Transport, error) {
	pubsub := client.Subscribe(ctx, inboxChannel(serviceID, id))

	// wait for the subscription confirmation so nothing sent to us is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to inbox: %w", err)
	}

	that := &Transport{
		logger:    logger.With("component", "redis_transport", "endpoint", id),
		client:    client,
		serviceID: serviceID,
		id:        id,
		pubsub:    pubsub,
		events:    make(chan transport.Event, eventBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		links:     make(map[string]*link),
	}

	go that.dispatch()

	return that, nil
}

func (that *Transport) ID() string {
	return that.id
}

func (that *Transport) Events() <-chan transport.Event {
	return that.events
}

func (that *Transport) emit(event transport.Event) {
	that.emitMu.RLock()
	defer that.emitMu.RUnlock()

	if that.closed {
		return
	}

	select {
	case that.events <- event:
	case <-that.quit:
	}
}

func (that *Transport) dispatch() {
	log := that.logger.With("method", "dispatch")
	defer close(that.done)

	announce := announceChannel(that.serviceID)

	for msg := range that.pubsub.Channel() {
		if msg.Channel == announce {
			that.onAnnounce(msg.Payload)
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Warn("dropping envelope", "error", err)
			continue
		}

		that.onEnvelope(env)
	}
}

func (that *Transport) onAnnounce(payload string) {
	if len(payload) < 2 {
		return
	}

	endpointID := payload[1:]
	if endpointID == that.id {
		return
	}

	that.mu.Lock()
	discovering := that.discovering
	that.mu.Unlock()

	if !discovering {
		return
	}

	switch payload[0] {
	case '+':
		that.emit(transport.Event{Kind: transport.EventEndpointFound, EndpointID: endpointID})
	case '-':
		that.emit(transport.Event{Kind: transport.EventEndpointLost, EndpointID: endpointID})
	}
}

func (that *Transport) onEnvelope(env envelope) {
	that.mu.Lock()

	var event *transport.Event

	switch env.Type {
	case envelopeConnect:
		that.links[env.From] = &link{}
		event = &transport.Event{Kind: transport.EventConnectionInitiated, EndpointID: env.From}
	case envelopeAccept:
		l, ok := that.links[env.From]
		if !ok {
			break
		}
		l.remoteAccepted = true
		if l.localAccepted && !l.open {
			l.open = true
			event = &transport.Event{Kind: transport.EventConnectionResult, EndpointID: env.From, Status: transport.StatusOK}
		}
	case envelopeReject:
		if _, ok := that.links[env.From]; ok {
			delete(that.links, env.From)
			event = &transport.Event{Kind: transport.EventConnectionResult, EndpointID: env.From, Status: transport.StatusRejected}
		}
	case envelopePayload:
		if l, ok := that.links[env.From]; ok && l.open {
			event = &transport.Event{Kind: transport.EventPayloadReceived, EndpointID: env.From, Payload: env.Payload}
		}
	case envelopeDisconnect:
		if l, ok := that.links[env.From]; ok {
			delete(that.links, env.From)
			if l.open {
				event = &transport.Event{Kind: transport.EventDisconnected, EndpointID: env.From}
			}
		}
	default:
		that.logger.Warn("unknown envelope", "type", env.Type, "from", env.From)
	}

	that.mu.Unlock()

	if event != nil {
		that.emit(*event)
	}
}

func (that *Transport) publish(ctx context.Context, endpointID, kind string, payload []byte) error {
	data, err := json.Marshal(envelope{Type: kind, From: that.id, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err = that.client.Publish(ctx, inboxChannel(that.serviceID, endpointID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %q: %w", kind, endpointID, err)
	}

	return nil
}

// Advertise - adds the endpoint to the hosts set and announces it.
func (that *Transport) Advertise(ctx context.Context, _ string) error {
	if err := that.client.SAdd(ctx, HostsKey(that.serviceID), that.id).Err(); err != nil {
		return fmt.Errorf("failed to advertise: %w", err)
	}

	if err := that.client.Publish(ctx, announceChannel(that.serviceID), "+"+that.id).Err(); err != nil {
		return fmt.Errorf("failed to announce: %w", err)
	}

	that.mu.Lock()
	that.advertising = true
	that.mu.Unlock()

	return nil
}

// Discover - reports the hosts already advertised, then every later announcement.
func (that *Transport) Discover(ctx context.Context) error {
	that.mu.Lock()
	that.discovering = true
	that.mu.Unlock()

	if err := that.pubsub.Subscribe(ctx, announceChannel(that.serviceID)); err != nil {
		return fmt.Errorf("failed to subscribe to announcements: %w", err)
	}

	hosts, err := that.client.SMembers(ctx, HostsKey(that.serviceID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	for _, host := range hosts {
		if host != that.id {
			that.emit(transport.Event{Kind: transport.EventEndpointFound, EndpointID: host})
		}
	}

	return nil
}

func (that *Transport) StopAdvertising(ctx context.Context) {
	that.mu.Lock()
	advertising := that.advertising
	that.advertising = false
	that.mu.Unlock()

	if !advertising {
		return
	}

	if err := that.client.SRem(ctx, HostsKey(that.serviceID), that.id).Err(); err != nil {
		that.logger.Warn("failed to remove host", "error", err)
	}

	if err := that.client.Publish(ctx, announceChannel(that.serviceID), "-"+that.id).Err(); err != nil {
		that.logger.Warn("failed to announce removal", "error", err)
	}
}

func (that *Transport) StopDiscovery(ctx context.Context) {
	that.mu.Lock()
	discovering := that.discovering
	that.discovering = false
	that.mu.Unlock()

	if !discovering {
		return
	}

	if err := that.pubsub.Unsubscribe(ctx, announceChannel(that.serviceID)); err != nil {
		that.logger.Warn("failed to unsubscribe from announcements", "error", err)
	}
}

func (that *Transport) RequestConnection(ctx context.Context, _, endpointID string) error {
	if endpointID == that.id {
		return fmt.Errorf("request connection to %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}

	that.mu.Lock()
	that.links[endpointID] = &link{}
	that.mu.Unlock()

	if err := that.publish(ctx, endpointID, envelopeConnect, nil); err != nil {
		that.mu.Lock()
		delete(that.links, endpointID)
		that.mu.Unlock()

		return err
	}

	that.emit(transport.Event{Kind: transport.EventConnectionInitiated, EndpointID: endpointID})

	return nil
}

// AcceptConnection - the connection opens once both sides accepted it.
func (that *Transport) AcceptConnection(ctx context.Context, endpointID string) error {
	that.mu.Lock()
	l, ok := that.links[endpointID]
	if !ok {
		that.mu.Unlock()
		return fmt.Errorf("accept connection from %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}

	l.localAccepted = true
	opened := l.remoteAccepted && !l.open
	if opened {
		l.open = true
	}
	that.mu.Unlock()

	if err := that.publish(ctx, endpointID, envelopeAccept, nil); err != nil {
		return err
	}

	if opened {
		that.emit(transport.Event{Kind: transport.EventConnectionResult, EndpointID: endpointID, Status: transport.StatusOK})
	}

	return nil
}

func (that *Transport) RejectConnection(ctx context.Context, endpointID string) error {
	that.mu.Lock()
	_, ok := that.links[endpointID]
	delete(that.links, endpointID)
	that.mu.Unlock()

	if !ok {
		return fmt.Errorf("reject connection from %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}

	if err := that.publish(ctx, endpointID, envelopeReject, nil); err != nil {
		return err
	}

	that.emit(transport.Event{Kind: transport.EventConnectionResult, EndpointID: endpointID, Status: transport.StatusRejected})

	return nil
}

func (that *Transport) Send(ctx context.Context, endpointID string, payload []byte) error {
	that.mu.Lock()
	l, ok := that.links[endpointID]
	open := ok && l.open
	that.mu.Unlock()

	if !open {
		return fmt.Errorf("send to %q: %w", endpointID, apperror.ErrEndpointUnknown)
	}

	return that.publish(ctx, endpointID, envelopePayload, payload)
}

// StopAllEndpoints - peers get Disconnected, the local side does not.
func (that *Transport) StopAllEndpoints(ctx context.Context) {
	that.mu.Lock()
	peers := make([]string, 0, len(that.links))
	for endpointID := range that.links {
		peers = append(peers, endpointID)
	}
	that.links = make(map[string]*link)
	that.mu.Unlock()

	for _, endpointID := range peers {
		if err := that.publish(ctx, endpointID, envelopeDisconnect, nil); err != nil {
			that.logger.Warn("failed to notify disconnect", "error", err)
		}
	}
}

// Close - leaves every connection, stops listening and closes the event stream.
func (that *Transport) Close() error {
	var err error

	that.once.Do(func() {
		ctx := context.Background()
		that.StopAdvertising(ctx)
		that.StopAllEndpoints(ctx)

		close(that.quit)

		if closeErr := that.pubsub.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close subscription: %w", closeErr)
		}

		<-that.done

		that.emitMu.Lock()
		that.closed = true
		close(that.events)
		that.emitMu.Unlock()
	})

	return err
}
