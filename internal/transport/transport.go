// Package transport defines the peer discovery and messaging collaborator the
// session runs on. Implementations deliver lifecycle changes and payloads as
// events on a single channel.
package transport

import "context"

// Transport abstracts advertising, discovery, connection negotiation and
// reliable whole-message delivery between endpoints.
type Transport interface {
	// Advertise makes localID discoverable to peers running Discover.
	Advertise(ctx context.Context, localID string) error
	// Discover starts reporting advertised endpoints as EventEndpointFound.
	Discover(ctx context.Context) error

	RequestConnection(ctx context.Context, localID, endpointID string) error
	AcceptConnection(ctx context.Context, endpointID string) error
	RejectConnection(ctx context.Context, endpointID string) error

	Send(ctx context.Context, endpointID string, payload []byte) error

	StopAdvertising(ctx context.Context)
	StopDiscovery(ctx context.Context)
	// StopAllEndpoints disconnects every endpoint. The local side gets no
	// EventDisconnected for connections it closed itself.
	StopAllEndpoints(ctx context.Context)

	Events() <-chan Event
}

type EventKind int

const (
	EventEndpointFound EventKind = iota + 1
	EventEndpointLost
	EventConnectionInitiated
	EventConnectionResult
	EventDisconnected
	EventPayloadReceived
)

func (k EventKind) String() string {
	switch k {
	case EventEndpointFound:
		return "endpoint_found"
	case EventEndpointLost:
		return "endpoint_lost"
	case EventConnectionInitiated:
		return "connection_initiated"
	case EventConnectionResult:
		return "connection_result"
	case EventDisconnected:
		return "disconnected"
	case EventPayloadReceived:
		return "payload_received"
	default:
		return "unknown"
	}
}

type Status int

const (
	StatusOK Status = iota
	StatusRejected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRejected:
		return "rejected"
	default:
		return "error"
	}
}

// Event is one notification from the transport. Status is set for
// EventConnectionResult, Payload for EventPayloadReceived.
type Event struct {
	Kind       EventKind
	EndpointID string
	Status     Status
	Payload    []byte
}
