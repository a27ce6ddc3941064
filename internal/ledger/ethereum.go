package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/config"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

// Ethereum talks to a deployed TicTacToe contract over JSON-RPC.
type Ethereum struct {
	logger *slog.Logger

	client      *ethclient.Client
	contractABI abi.ABI
	contract    *bind.BoundContract
	address     common.Address

	key            *ecdsa.PrivateKey
	chainID        *big.Int
	receiptTimeout time.Duration
}

type gameCreated struct {
	GameId *big.Int //nolint: revive, stylecheck // must match the ABI argument name
	Player common.Address
}

// DialEthereum - opens the RPC connection and binds the contract. No request is sent to the node yet.
func DialEthereum(ctx context.Context, logger *slog.Logger, conf config.Ledger) (*Ethereum, error) {
	if conf.RPCURL == "" {
		return nil, fmt.Errorf("%w: rpc url is empty", apperror.ErrNoProvider)
	}

	if !common.IsHexAddress(conf.ContractAddress) {
		return nil, fmt.Errorf("%w: invalid contract address %q", apperror.ErrNoProvider, conf.ContractAddress)
	}

	parsedABI, err := abi.JSON(strings.NewReader(ticTacToeABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}

	var key *ecdsa.PrivateKey
	if conf.PrivateKey != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(conf.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key: %w", apperror.ErrNoProvider, err)
		}
	}

	client, err := ethclient.DialContext(ctx, conf.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrNoProvider, err)
	}

	address := common.HexToAddress(conf.ContractAddress)

	var chainID *big.Int
	if conf.ChainID != 0 {
		chainID = big.NewInt(conf.ChainID)
	}

	return &Ethereum{
		logger:         logger.With("component", "ledger", "driver", config.LedgerEthereum),
		client:         client,
		contractABI:    parsedABI,
		contract:       bind.NewBoundContract(address, parsedABI, client, client, client),
		address:        address,
		key:            key,
		chainID:        chainID,
		receiptTimeout: conf.ReceiptTimeout,
	}, nil
}

func (that *Ethereum) Close() {
	that.client.Close()
}

// Connect - resolves the signing account and the chain it signs for.
func (that *Ethereum) Connect(ctx context.Context) (entity.Identity, error) {
	if that.key == nil {
		return entity.Identity{}, fmt.Errorf("%w: no signing key configured", apperror.ErrNoProvider)
	}

	if that.chainID == nil {
		chainID, err := that.client.ChainID(ctx)
		if err != nil {
			return entity.Identity{}, fmt.Errorf("%w: failed to get chain id: %w", apperror.ErrNoProvider, err)
		}
		that.chainID = chainID
	}

	identity := entity.Identity{Address: crypto.PubkeyToAddress(that.key.PublicKey).Hex()}
	that.logger.Info("connected to ledger", "account", identity.Address, "chainID", that.chainID.String())

	return identity, nil
}

func (that *Ethereum) CreateGame(ctx context.Context) (entity.GameID, error) {
	opts, err := that.transactOpts(ctx)
	if err != nil {
		return "", err
	}

	tx, err := that.contract.Transact(opts, methodCreateGame)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send createGame: %w", apperror.ErrLedgerWrite, err)
	}

	receipt, err := that.waitMined(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%w: createGame %s: %w", apperror.ErrLedgerWrite, tx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: createGame %s reverted", apperror.ErrLedgerWrite, tx.Hash().Hex())
	}

	eventID := that.contractABI.Events[eventGameCreated].ID
	for _, entry := range receipt.Logs {
		if entry.Address != that.address || len(entry.Topics) == 0 || entry.Topics[0] != eventID {
			continue
		}

		var event gameCreated
		if err = that.contract.UnpackLog(&event, eventGameCreated, *entry); err != nil {
			return "", fmt.Errorf("%w: failed to unpack %s: %w", apperror.ErrLedgerWrite, eventGameCreated, err)
		}

		return entity.GameID(event.GameId.String()), nil
	}

	return "", fmt.Errorf("%w: createGame %s emitted no %s event", apperror.ErrLedgerWrite, tx.Hash().Hex(), eventGameCreated)
}

func (that *Ethereum) ReadBoard(ctx context.Context, id entity.GameID) (entity.Board, error) {
	out, err := that.call(ctx, methodGetBoard, id)
	if err != nil {
		return entity.Board{}, err
	}

	raw := *abi.ConvertType(out[0], new([entity.BoardSize]uint8)).(*[entity.BoardSize]uint8)

	return DecodeBoard(raw), nil
}

func (that *Ethereum) ReadCurrentPlayer(ctx context.Context, id entity.GameID) (entity.PlayerMark, error) {
	out, err := that.call(ctx, methodGetCurrentPlayer, id)
	if err != nil {
		return "", err
	}

	return DecodePlayer(*abi.ConvertType(out[0], new(uint8)).(*uint8))
}

func (that *Ethereum) ReadWinner(ctx context.Context, id entity.GameID) (entity.Outcome, error) {
	out, err := that.call(ctx, methodGetWinner, id)
	if err != nil {
		return entity.OutcomeNone, err
	}

	return DecodeOutcome(*abi.ConvertType(out[0], new(uint8)).(*uint8)), nil
}

func (that *Ethereum) EstimateMoveFee(ctx context.Context, id entity.GameID, cell int, identity entity.Identity) (entity.FeeEstimate, error) {
	gameID, err := parseGameID(id)
	if err != nil {
		return entity.FeeEstimate{}, fmt.Errorf("%w: %w", apperror.ErrEstimation, err)
	}

	data, err := that.contractABI.Pack(methodMakeMove, gameID, uint8(cell)) //nolint: gosec // cell is validated by the caller
	if err != nil {
		return entity.FeeEstimate{}, fmt.Errorf("%w: failed to pack makeMove: %w", apperror.ErrEstimation, err)
	}

	gas, err := that.client.EstimateGas(ctx, ethereum.CallMsg{
		From: common.HexToAddress(identity.Address),
		To:   &that.address,
		Data: data,
	})
	if err != nil {
		return entity.FeeEstimate{}, fmt.Errorf("%w: %w", apperror.ErrEstimation, err)
	}

	gasPrice, err := that.client.SuggestGasPrice(ctx)
	if err != nil {
		return entity.FeeEstimate{}, fmt.Errorf("%w: failed to get gas price: %w", apperror.ErrEstimation, err)
	}

	return entity.FeeEstimate{Gas: gas, GasPrice: gasPrice}, nil
}

// SubmitMove - sends makeMove and streams its hash, then its receipt or an error. The stream is closed after
// the last event.
func (that *Ethereum) SubmitMove(ctx context.Context, id entity.GameID, cell int, identity entity.Identity) (<-chan entity.TxEvent, error) {
	gameID, err := parseGameID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrLedgerWrite, err)
	}

	opts, err := that.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(opts.From.Hex(), identity.Address) {
		return nil, fmt.Errorf("%w: identity %s is not the signing account", apperror.ErrLedgerWrite, identity.Address)
	}

	events := make(chan entity.TxEvent, 2)

	go func() {
		defer close(events)

		log := that.logger.With("method", "SubmitMove", "gameID", id, "cell", cell)

		tx, err := that.contract.Transact(opts, methodMakeMove, gameID, uint8(cell)) //nolint: gosec // cell is validated by the caller
		if err != nil {
			log.Error("failed to send transaction", "error", err)
			events <- entity.TxEvent{Kind: entity.TxEventError, Err: fmt.Errorf("%w: %w", apperror.ErrLedgerWrite, err)}
			return
		}

		hash := tx.Hash().Hex()
		events <- entity.TxEvent{Kind: entity.TxEventHash, TxHash: hash}

		receipt, err := that.waitMined(ctx, tx)
		if err != nil {
			log.Error("transaction not mined", "txHash", hash, "error", err)
			events <- entity.TxEvent{Kind: entity.TxEventError, TxHash: hash, Err: fmt.Errorf("%w: %w", apperror.ErrLedgerWrite, err)}
			return
		}

		events <- entity.TxEvent{
			Kind:   entity.TxEventReceipt,
			TxHash: hash,
			Receipt: &entity.TxReceipt{
				TxHash:      hash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				Succeeded:   receipt.Status == types.ReceiptStatusSuccessful,
			},
		}
	}()

	return events, nil
}

func (that *Ethereum) call(ctx context.Context, method string, id entity.GameID) ([]interface{}, error) {
	gameID, err := parseGameID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrLedgerRead, err)
	}

	var out []interface{}
	if err = that.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, gameID); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperror.ErrLedgerRead, method, err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned nothing", apperror.ErrLedgerRead, method)
	}

	return out, nil
}

func (that *Ethereum) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if that.key == nil || that.chainID == nil {
		return nil, fmt.Errorf("%w: ledger is not connected", apperror.ErrLedgerWrite)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(that.key, that.chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build transactor: %w", apperror.ErrLedgerWrite, err)
	}
	opts.Context = ctx

	return opts, nil
}

func (that *Ethereum) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if that.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, that.receiptTimeout)
		defer cancel()
	}

	receipt, err := bind.WaitMined(ctx, that.client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for receipt: %w", err)
	}

	return receipt, nil
}
