// Package websocket exposes a session to a UI client: intents come in as JSON
// actions, every state change goes out as a "state" message.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rocketscienceinc/tictactoe-nearby/internal/entity"
)

const (
	pongWait     = time.Minute
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
	outboxBuffer = 16

	// intents per second a single client may send, with bursts
	intentRate  = 10
	intentBurst = 20
)

type session interface {
	HostGame(boardSize int) error
	DiscoverGame() error
	StartGame() error
	PlayAt(row, col int) error
	StartNextGame() error
	LeaveSession() error

	Subscribe() (<-chan entity.GameState, func())
}

type Server struct {
	logger   *slog.Logger
	session  session
	upgrader websocket.Upgrader

	handlers map[string]func(payload []byte) error
}

func New(logger *slog.Logger, session session) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		session: session,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},

		handlers: make(map[string]func([]byte) error),
	}

	server.handlers[actionHost] = server.handleHost
	server.handlers[actionDiscover] = server.handleDiscover
	server.handlers[actionStart] = server.handleStart
	server.handlers[actionPlay] = server.handlePlay
	server.handlers[actionNext] = server.handleNext
	server.handlers[actionLeave] = server.handleLeave

	return server
}

func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.upgradeToWebSocket)

	return mux
}

// Start - starts WebSocket server, it stops when ctx is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection and serves the client until it leaves.
func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	log.Info("WebSocket connection established", "remote", conn.RemoteAddr().String())

	c := &client{
		conn:    conn,
		outbox:  make(chan Message, outboxBuffer),
		limiter: rate.NewLimiter(intentRate, intentBurst),
		done:    make(chan struct{}),
	}

	states, cancel := that.session.Subscribe()
	defer cancel()

	go that.writePump(c, states)

	if err = that.readPump(c); err != nil {
		log.Info("WebSocket connection closed", "error", err)
	}

	close(c.done)
}

type client struct {
	conn    *websocket.Conn
	outbox  chan Message
	limiter *rate.Limiter
	done    chan struct{}
}

// reply queues a message for the write pump, never blocking the read loop.
func (that *client) reply(msg Message) {
	select {
	case that.outbox <- msg:
	case <-that.done:
	default:
	}
}

// readPump - processes messages from the client.
func (that *Server) readPump(c *client) error {
	log := that.logger.With("method", "readPump")

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		if !c.limiter.Allow() {
			c.reply(errorMessage(message.Action, ErrRateLimited))
			continue
		}

		if err := that.dispatch(&message); err != nil {
			log.Debug("error processing message", "action", message.Action, "error", err)
			c.reply(errorMessage(message.Action, err))
		}
	}
}

func (that *Server) dispatch(message *Message) error {
	handler, ok := that.handlers[message.Action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, message.Action)
	}

	return handler(message.Payload)
}

// writePump - the only writer of the connection: state pushes, replies and pings.
func (that *Server) writePump(c *client, states <-chan entity.GameState) {
	log := that.logger.With("method", "writePump")

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		var err error

		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			err = that.write(c, stateMessage(state))
		case msg := <-c.outbox:
			err = that.write(c, msg)
		case <-ticker.C:
			err = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		}

		if err != nil {
			log.Info("failed to write message", "error", err)
			return
		}
	}
}

func (that *Server) write(c *client, msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}
