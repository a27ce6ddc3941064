package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/config"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/ledger"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/repository"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/tui"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-dapp/transport/rest"
	"github.com/rocketscienceinc/tictactoe-dapp/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	gameLedger, closeLedger, err := newLedger(ctx, logger, conf.Ledger)
	if err != nil {
		return fmt.Errorf("could not open ledger: %w", err)
	}
	defer closeLedger()

	var journal repository.SessionRepository
	if conf.Redis.Enabled() {
		redisStorage, err := storage.NewRedisStorage(ctx, conf.Redis)
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err := redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		journal = repository.NewSessionRepository(redisStorage.Connection, conf.Session.TTL)
	} else {
		log.Info("redis is not configured, session journal disabled")
	}

	client := usecase.NewGameClient(logger, *conf, gameLedger, journal)
	if err = client.Bootstrap(ctx); err != nil {
		return fmt.Errorf("could not start game: %w", err)
	}

	// run game loop
	clientErrCh := make(chan error, 1)
	go func() {
		if clientErr := client.Run(ctx); clientErr != nil {
			log.Error("Game client error", "error", clientErr)
			clientErrCh <- clientErr
		}
	}()

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.New(logger, client).Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if wsErr := websocket.New(logger, client).Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	// run terminal UI, quitting it stops the application
	uiErrCh := make(chan error, 1)
	if conf.UI == config.UITerminal {
		go func() {
			uiErrCh <- tui.New(logger, client).Run(ctx)
			cancel()
		}()
	}

	select {
	case err = <-clientErrCh:
		return fmt.Errorf("game client error: %w", err)
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case err = <-uiErrCh:
		if err != nil {
			return fmt.Errorf("terminal UI error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// newLedger - opens the configured ledger driver, the returned func releases it.
func newLedger(ctx context.Context, logger *slog.Logger, conf config.Ledger) (usecase.Ledger, func(), error) {
	switch conf.Driver {
	case config.LedgerEthereum:
		eth, err := ledger.DialEthereum(ctx, logger, conf)
		if err != nil {
			return nil, nil, err
		}

		return eth, eth.Close, nil
	case config.LedgerSimulated:
		account, err := ledger.SimulatedAccount(conf)
		if err != nil {
			return nil, nil, err
		}

		return ledger.NewSimulated(logger, account, conf.BlockTime), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger driver %q", conf.Driver)
	}
}
