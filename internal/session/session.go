package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

type Ledger interface {
	CreateGame(ctx context.Context) (entity.GameID, error)
	ReadBoard(ctx context.Context, id entity.GameID) (entity.Board, error)
	ReadCurrentPlayer(ctx context.Context, id entity.GameID) (entity.PlayerMark, error)
	ReadWinner(ctx context.Context, id entity.GameID) (entity.Outcome, error)
}

// GameSession owns the ledger identifier of one match and the last state read for it.
//
// The cached state is not guarded: after bootstrap it is only written by the coordinator loop. Fetch never
// touches the cache and may be called from any goroutine once the game id is set.
type GameSession struct {
	logger *slog.Logger
	ledger Ledger

	id    entity.GameID
	state entity.GameState
}

func New(logger *slog.Logger, ledger Ledger) *GameSession {
	return &GameSession{
		logger: logger.With("component", "session"),
		ledger: ledger,
		state:  entity.NewGameState(),
	}
}

// Create asks the ledger for a new game. It runs at most once: later calls return the id already assigned.
func (that *GameSession) Create(ctx context.Context) (entity.GameID, error) {
	if that.id.IsSet() {
		return that.id, nil
	}

	id, err := that.ledger.CreateGame(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperror.ErrSessionCreation, err)
	}

	if !id.IsSet() {
		return "", fmt.Errorf("%w: ledger returned an empty game id", apperror.ErrSessionCreation)
	}

	that.id = id
	that.logger.Info("game created", "gameID", id)

	return id, nil
}

// Attach binds the session to a game created earlier, e.g. one restored from the journal.
func (that *GameSession) Attach(id entity.GameID) error {
	if that.id.IsSet() {
		return fmt.Errorf("%w: session is already bound to game %s", apperror.ErrSessionCreation, that.id)
	}

	if !id.IsSet() {
		return fmt.Errorf("%w: empty game id", apperror.ErrSessionCreation)
	}

	that.id = id
	that.logger.Info("game attached", "gameID", id)

	return nil
}

func (that *GameSession) GameID() entity.GameID {
	return that.id
}

// Fetch reads board, current player and winner. Either all three are returned or an error, never a mix.
func (that *GameSession) Fetch(ctx context.Context) (entity.GameState, error) {
	if !that.id.IsSet() {
		return entity.GameState{}, fmt.Errorf("%w: %w", apperror.ErrLedgerRead, apperror.ErrGameNotCreated)
	}

	board, err := that.ledger.ReadBoard(ctx, that.id)
	if err != nil {
		return entity.GameState{}, fmt.Errorf("failed to read board: %w", wrapRead(err))
	}

	player, err := that.ledger.ReadCurrentPlayer(ctx, that.id)
	if err != nil {
		return entity.GameState{}, fmt.Errorf("failed to read current player: %w", wrapRead(err))
	}

	winner, err := that.ledger.ReadWinner(ctx, that.id)
	if err != nil {
		return entity.GameState{}, fmt.Errorf("failed to read winner: %w", wrapRead(err))
	}

	return entity.GameState{Board: board, CurrentPlayer: player, Winner: winner}, nil
}

// Apply replaces the cached state as a whole.
func (that *GameSession) Apply(state entity.GameState) {
	that.state = state
}

func (that *GameSession) Refresh(ctx context.Context) (entity.GameState, error) {
	state, err := that.Fetch(ctx)
	if err != nil {
		return entity.GameState{}, err
	}

	that.Apply(state)

	return state, nil
}

// CurrentState is the last successfully refreshed state.
func (that *GameSession) CurrentState() entity.GameState {
	return that.state
}

func wrapRead(err error) error {
	if errors.Is(err, apperror.ErrLedgerRead) {
		return err
	}

	return fmt.Errorf("%w: %w", apperror.ErrLedgerRead, err)
}
