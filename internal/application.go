package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/bot"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/config"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/session"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport"
	"github.com/rocketscienceinc/tictactoe-nearby/internal/transport/memory"
	redistransport "github.com/rocketscienceinc/tictactoe-nearby/internal/transport/redis"
	"github.com/rocketscienceinc/tictactoe-nearby/transport/rest"
	"github.com/rocketscienceinc/tictactoe-nearby/transport/websocket"
)

const botThinkTime = 500 * time.Millisecond

var ErrAddrNotFound = errors.New("redis address string is empty")

type closableTransport interface {
	transport.Transport
	io.Closer
}

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	localID := uuid.NewString()

	group, groupCtx := errgroup.WithContext(ctx)

	tr, err := newTransport(groupCtx, logger, conf, localID, group)
	if err != nil {
		return err
	}

	defer func() {
		if err = tr.Close(); err != nil {
			log.Error("could not close transport", "error", err)
		}
	}()

	coordinator := session.New(logger, tr, sessionOptions(conf, localID)...)

	group.Go(func() error {
		return coordinator.Run(groupCtx)
	})

	if conf.Session.AutoPlay {
		player := bot.New(logger, coordinator)
		group.Go(func() error {
			return player.Run(groupCtx)
		})
	}

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(groupCtx, logger, conf.HTTPPort, coordinator); httpErr != nil {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, coordinator)
		if wsErr := wsServer.Start(groupCtx, conf.SocketPort); wsErr != nil {
			return fmt.Errorf("WebSocket server error: %w", wsErr)
		}
		return nil
	})

	log.Info("session ready", "local_id", localID)

	if err = group.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

func sessionOptions(conf *config.Config, localID string) []session.Option {
	opts := []session.Option{session.WithLocalID(localID)}
	if conf.Session.Seed != 0 {
		opts = append(opts, session.WithSeed(conf.Session.Seed))
	}

	return opts
}

// newTransport - the redis transport reaches other processes, the memory one
// seats local bot opponents that join whatever the local player hosts.
func newTransport(
	ctx context.Context, logger *slog.Logger, conf *config.Config, localID string, group *errgroup.Group,
) (closableTransport, error) {
	switch conf.Transport.Kind {
	case config.TransportMemory:
		network := memory.NewNetwork()

		for i := range conf.Session.Bots {
			startBotPeer(ctx, logger, network, fmt.Sprintf("bot-%d", i+1), group)
		}

		return network.Join(localID), nil
	default:
		addr := conf.Redis.GetRedisAddr()
		if conf.Redis.Host == "" {
			return nil, ErrAddrNotFound
		}

		client, err := redistransport.NewClient(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis: %w", err)
		}

		tr, err := redistransport.New(ctx, logger, client, conf.Transport.ServiceID, localID)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("could not start redis transport: %w", err)
		}

		return &redisTransport{Transport: tr, closeClient: client.Close}, nil
	}
}

type redisTransport struct {
	*redistransport.Transport
	closeClient func() error
}

func (that *redisTransport) Close() error {
	return errors.Join(that.Transport.Close(), that.closeClient())
}

func startBotPeer(ctx context.Context, logger *slog.Logger, network *memory.Network, id string, group *errgroup.Group) {
	botLogger := logger.With("bot", id)

	tr := network.Join(id)
	peer := session.New(botLogger, tr, session.WithLocalID(id))
	player := bot.New(botLogger, peer, bot.WithAutoJoin(), bot.WithDelay(botThinkTime))

	group.Go(func() error {
		defer tr.Close()
		return peer.Run(ctx)
	})

	group.Go(func() error {
		return player.Run(ctx)
	})
}
