package ledger

import (
	"fmt"
	"math/big"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

// Contract encoding of marks. Any other cell value is an empty square.
const (
	encodedX    uint8 = 0
	encodedO    uint8 = 1
	encodedDraw uint8 = 2
)

func DecodeCell(value uint8) entity.Cell {
	switch value {
	case encodedX:
		return entity.CellX
	case encodedO:
		return entity.CellO
	default:
		return entity.EmptyCell
	}
}

func DecodeBoard(raw [entity.BoardSize]uint8) entity.Board {
	var board entity.Board
	for i, value := range raw {
		board[i] = DecodeCell(value)
	}

	return board
}

func DecodePlayer(value uint8) (entity.PlayerMark, error) {
	switch value {
	case encodedX:
		return entity.PlayerX, nil
	case encodedO:
		return entity.PlayerO, nil
	default:
		return "", fmt.Errorf("%w: unknown current player %d", apperror.ErrLedgerRead, value)
	}
}

func DecodeOutcome(value uint8) entity.Outcome {
	switch value {
	case encodedX:
		return entity.OutcomeX
	case encodedO:
		return entity.OutcomeO
	case encodedDraw:
		return entity.OutcomeDraw
	default:
		return entity.OutcomeNone
	}
}

func parseGameID(id entity.GameID) (*big.Int, error) {
	gameID, ok := new(big.Int).SetString(string(id), 10)
	if !ok || gameID.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", apperror.ErrGameNotCreated, id)
	}

	return gameID, nil
}
