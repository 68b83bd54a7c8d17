// Package suite runs integration tests against a throwaway Redis server in docker.
package suite

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport"
	redistransport "github.com/rocketscienceinc/tictactoe-nearby/internal/transport/redis"
)

const (
	expireDuration  = 120
	maxWaitDuration = 120 * time.Second
	eventTimeout    = 5 * time.Second
)

const (
	redisPort  = "6379/tcp"
	redisImage = "redis"
	redisTag   = "alpine"
)

// Suite is one test's view of the shared Redis server. ServiceID is unique per
// suite so sessions of different tests never discover each other.
type Suite struct {
	*testing.T
	Logger *slog.Logger

	Client    *redis.Client
	Addr      string
	ServiceID string
}

func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: redisImage,
		Tag:        redisTag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start redis: %v", err)
	}

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Errorf("could not purge redis: %v", err)
		}
	})

	// hard kill in case cleanup never runs
	_ = resource.Expire(expireDuration)

	addr := resource.GetHostPort(redisPort)
	pool.MaxWait = maxWaitDuration

	var client *redis.Client
	if err = pool.Retry(func() error {
		client, err = redistransport.NewClient(ctx, addr)
		return err
	}); err != nil {
		t.Fatalf("could not connect to redis: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return ctx, &Suite{
		T:         t,
		Logger:    logger,
		Client:    client,
		Addr:      addr,
		ServiceID: "tictactoe-" + uuid.NewString()[:8],
	}
}

// Transport joins the suite's service as endpoint id. It is closed on cleanup.
func (that *Suite) Transport(ctx context.Context, id string) *redistransport.Transport {
	that.Helper()

	tr, err := redistransport.New(ctx, that.Logger.With("endpoint", id), that.Client, that.ServiceID, id)
	if err != nil {
		that.Fatalf("could not join %s as %s: %v", that.ServiceID, id, err)
	}

	that.Cleanup(func() {
		if err := tr.Close(); err != nil {
			that.Errorf("could not close transport %s: %v", id, err)
		}
	})

	return tr
}

// NextEvent waits for the next event of tr.
func (that *Suite) NextEvent(tr *redistransport.Transport) transport.Event {
	that.Helper()

	select {
	case event := <-tr.Events():
		return event
	case <-time.After(eventTimeout):
		that.Fatalf("no event for %s", tr.ID())
		return transport.Event{}
	}
}

// Hosts lists the endpoints advertising on the suite's service.
func (that *Suite) Hosts(ctx context.Context) []string {
	that.Helper()

	hosts, err := that.Client.SMembers(ctx, redistransport.HostsKey(that.ServiceID)).Result()
	if err != nil {
		that.Fatalf("could not list hosts: %v", err)
	}

	return hosts
}
