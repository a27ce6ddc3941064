package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/projection"
)

const shutdownTimeout = 5 * time.Second

type gameClient interface {
	View() projection.View
	Click(index int) error
	Jump(move int) error
	DismissNotice() error
}

type Server struct {
	logger *slog.Logger
	client gameClient
	router *mux.Router
}

func New(logger *slog.Logger, client gameClient) *Server {
	server := &Server{
		logger: logger.With("component", "rest"),
		client: client,
		router: mux.NewRouter(),
	}

	server.router.HandleFunc("/ping", server.handlePing).Methods(http.MethodGet)
	server.router.HandleFunc("/view", server.handleView).Methods(http.MethodGet)
	server.router.HandleFunc("/cells/{index:[0-9]+}", server.handleClick).Methods(http.MethodPost)
	server.router.HandleFunc("/history/{move:[0-9]+}", server.handleJump).Methods(http.MethodPost)
	server.router.HandleFunc("/notice", server.handleDismissNotice).Methods(http.MethodDelete)

	return server
}

func (that *Server) Handler() http.Handler {
	return that.router
}

// Start - serves the REST API until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.router,
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

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}

func (that *Server) writeError(w http.ResponseWriter, status int, err error) {
	that.writeJSON(w, status, errorResponse{Error: err.Error()})
}
