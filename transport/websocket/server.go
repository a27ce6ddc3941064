package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/projection"
)

const shutdownTimeout = 5 * time.Second

type gameClient interface {
	View() projection.View
	Click(index int) error
	Jump(move int) error
	DismissNotice() error
	Subscribe() (<-chan projection.View, func())
}

type handler func(ctx context.Context, message *Message, conn *connection) error

type Server struct {
	logger   *slog.Logger
	client   gameClient
	upgrader websocket.Upgrader

	handlers map[string]handler
}

func New(logger *slog.Logger, client gameClient) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		client: client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		handlers: make(map[string]handler),
	}

	server.handlers[actionCellClick] = server.handleCellClick
	server.handlers[actionHistoryJump] = server.handleHistoryJump
	server.handlers[actionNoticeDismiss] = server.handleNoticeDismiss
	server.handlers[actionViewGet] = server.handleViewGet

	return server
}

// Handler - serves /ws, connections are closed once ctx is done.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Handler(ctx),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection and pushes every new view to it until either side goes away.
func (that *Server) upgradeToWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket", "remote", r.RemoteAddr)

	ws, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	conn := &connection{ws: ws}
	defer conn.close()

	log.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	views, unsubscribe := that.client.Subscribe()
	defer unsubscribe()

	if err = conn.sendView(that.client.View()); err != nil {
		log.Error("failed to send initial view", "error", err)
		return
	}

	go that.forwardViews(ctx, conn, views)

	go func() {
		<-ctx.Done()
		conn.close()
	}()

	if err = that.handleMessages(ctx, conn); err != nil {
		log.Debug("connection closed", "error", err)
	}
}

func (that *Server) forwardViews(ctx context.Context, conn *connection, views <-chan projection.View) {
	for {
		select {
		case <-ctx.Done():
			return
		case view, ok := <-views:
			if !ok {
				return
			}

			if err := conn.sendView(view); err != nil {
				that.logger.Debug("failed to push view", "error", err)
				return
			}
		}
	}
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, conn *connection) error {
	log := that.logger.With("method", "handleMessages")

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Warn("failed to unmarshal message", "error", err)
			if err = conn.sendError(actionError, "malformed message"); err != nil {
				return err
			}

			continue
		}

		handle, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			if err = conn.sendError(message.Action, "unknown action"); err != nil {
				return err
			}

			continue
		}

		if err = handle(ctx, &message, conn); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}
