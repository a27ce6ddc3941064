package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/config"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

const (
	simulatedMoveGas  uint64 = 52_000
	simulatedGasPrice int64  = 1_000_000_000 // 1 gwei

	// DefaultSimulatedAccount is the first well-known local development account.
	DefaultSimulatedAccount = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// SimulatedAccount - the address the configured private key signs for, the default account without one.
func SimulatedAccount(conf config.Ledger) (string, error) {
	if conf.PrivateKey == "" {
		return DefaultSimulatedAccount, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(conf.PrivateKey, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: invalid private key: %w", apperror.ErrNoProvider, err)
	}

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// Simulated is an in-process stand-in for the TicTacToe contract. Transactions are mined after blockTime,
// moves that break the rules are mined with a failed receipt and leave the game untouched.
type Simulated struct {
	logger *slog.Logger

	mu        sync.Mutex
	account   entity.Identity
	games     map[entity.GameID]*contractGame
	nextID    uint64
	block     uint64
	blockTime time.Duration
}

func NewSimulated(logger *slog.Logger, account string, blockTime time.Duration) *Simulated {
	return &Simulated{
		logger:    logger.With("component", "ledger", "driver", config.LedgerSimulated),
		account:   entity.Identity{Address: account},
		games:     make(map[entity.GameID]*contractGame),
		blockTime: blockTime,
	}
}

func (that *Simulated) Connect(_ context.Context) (entity.Identity, error) {
	if that.account.Address == "" {
		return entity.Identity{}, fmt.Errorf("%w: no account configured", apperror.ErrNoProvider)
	}

	return that.account, nil
}

func (that *Simulated) CreateGame(ctx context.Context) (entity.GameID, error) {
	if err := that.mine(ctx); err != nil {
		return "", fmt.Errorf("%w: createGame: %w", apperror.ErrLedgerWrite, err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	id := entity.GameID(strconv.FormatUint(that.nextID, 10))
	that.nextID++
	that.games[id] = newContractGame()

	that.logger.Debug("game created", "gameID", id)

	return id, nil
}

// State returns the whole contract-side state of a game.
func (that *Simulated) State(_ context.Context, id entity.GameID) (entity.GameState, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	game, ok := that.games[id]
	if !ok {
		return entity.GameState{}, fmt.Errorf("%w: %w: %s", apperror.ErrLedgerRead, ErrGameNotFound, id)
	}

	return game.state(), nil
}

func (that *Simulated) ReadBoard(ctx context.Context, id entity.GameID) (entity.Board, error) {
	state, err := that.State(ctx, id)
	return state.Board, err
}

func (that *Simulated) ReadCurrentPlayer(ctx context.Context, id entity.GameID) (entity.PlayerMark, error) {
	state, err := that.State(ctx, id)
	return state.CurrentPlayer, err
}

func (that *Simulated) ReadWinner(ctx context.Context, id entity.GameID) (entity.Outcome, error) {
	state, err := that.State(ctx, id)
	return state.Winner, err
}

func (that *Simulated) EstimateMoveFee(_ context.Context, id entity.GameID, cell int, _ entity.Identity) (entity.FeeEstimate, error) {
	that.mu.Lock()
	_, ok := that.games[id]
	that.mu.Unlock()

	if !ok {
		return entity.FeeEstimate{}, fmt.Errorf("%w: %w: %s", apperror.ErrEstimation, ErrGameNotFound, id)
	}

	if err := entity.ValidateCell(cell); err != nil {
		return entity.FeeEstimate{}, fmt.Errorf("%w: %w", apperror.ErrEstimation, err)
	}

	return entity.FeeEstimate{Gas: simulatedMoveGas, GasPrice: big.NewInt(simulatedGasPrice)}, nil
}

// SubmitMove - plays the move as the player whose turn it is once the transaction is mined.
func (that *Simulated) SubmitMove(ctx context.Context, id entity.GameID, cell int, identity entity.Identity) (<-chan entity.TxEvent, error) {
	if identity.Address != that.account.Address {
		return nil, fmt.Errorf("%w: unknown account %s", apperror.ErrLedgerWrite, identity.Address)
	}

	hash, err := randomTxHash()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrLedgerWrite, err)
	}

	events := make(chan entity.TxEvent, 2)
	events <- entity.TxEvent{Kind: entity.TxEventHash, TxHash: hash}

	go func() {
		defer close(events)

		if err := that.mine(ctx); err != nil {
			events <- entity.TxEvent{Kind: entity.TxEventError, TxHash: hash, Err: fmt.Errorf("%w: %w", apperror.ErrLedgerWrite, err)}
			return
		}

		receipt := that.apply(id, cell, hash)
		events <- entity.TxEvent{Kind: entity.TxEventReceipt, TxHash: hash, Receipt: receipt}
	}()

	return events, nil
}

func (that *Simulated) apply(id entity.GameID, cell int, hash string) *entity.TxReceipt {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.block++
	receipt := &entity.TxReceipt{TxHash: hash, BlockNumber: that.block, Succeeded: true}

	log := that.logger.With("method", "apply", "gameID", id, "cell", cell, "txHash", hash)

	game, ok := that.games[id]
	if !ok {
		log.Warn("transaction reverted", "error", ErrGameNotFound)
		receipt.Succeeded = false
		return receipt
	}

	if err := makeTurn(game, game.turn, cell); err != nil {
		log.Warn("transaction reverted", "error", err)
		receipt.Succeeded = false
		return receipt
	}

	log.Debug("move mined", "block", that.block)

	return receipt
}

func (that *Simulated) mine(ctx context.Context) error {
	if that.blockTime <= 0 {
		return nil
	}

	timer := time.NewTimer(that.blockTime)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("transaction not mined: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func randomTxHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate transaction hash: %w", err)
	}

	return "0x" + hex.EncodeToString(b), nil
}
