package ledger

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

// Revert reasons of the tic-tac-toe contract.
var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameFinished = errors.New("game is already finished")
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrCellOccupied = errors.New("cell is already occupied")
)

// contractGame is the storage of one game inside the simulated contract.
type contractGame struct {
	board  entity.Board
	turn   entity.PlayerMark
	winner entity.Outcome
}

func newContractGame() *contractGame {
	return &contractGame{turn: entity.PlayerX}
}

func (that *contractGame) state() entity.GameState {
	return entity.GameState{
		Board:         that.board,
		CurrentPlayer: that.turn,
		Winner:        that.winner,
	}
}

// makeTurn applies a move the way the deployed contract does, leaving the game untouched on revert.
func makeTurn(game *contractGame, player entity.PlayerMark, cell int) error {
	if game.winner != entity.OutcomeNone {
		return ErrGameFinished
	}

	if err := validateMove(game, player, cell); err != nil {
		return fmt.Errorf("invalid turn: %w", err)
	}

	game.board[cell] = player.Cell()
	updateGameStatus(game, player)

	return nil
}

// validateMove - checks if the move is valid.
func validateMove(game *contractGame, player entity.PlayerMark, cell int) error {
	if err := entity.ValidateCell(cell); err != nil {
		return err
	}

	if game.turn != player {
		return ErrNotYourTurn
	}

	if game.board[cell] != entity.EmptyCell {
		return ErrCellOccupied
	}

	return nil
}

// updateGameStatus - checks the game status after a move.
func updateGameStatus(game *contractGame, player entity.PlayerMark) {
	switch winner := game.board.DetermineResult(); winner {
	case entity.OutcomeX, entity.OutcomeO, entity.OutcomeDraw:
		game.winner = winner
	default:
		game.turn = player.Opponent()
	}
}
