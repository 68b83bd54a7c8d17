package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewClient - connects to Redis and checks the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if _, err := conn.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return conn, nil
}

// HostsKey is the set of endpoints currently advertising a game of serviceID.
func HostsKey(serviceID string) string {
	return serviceID + ":hosts"
}

func announceChannel(serviceID string) string {
	return serviceID + ":announce"
}

func inboxChannel(serviceID, endpointID string) string {
	return serviceID + ":inbox:" + endpointID
}
