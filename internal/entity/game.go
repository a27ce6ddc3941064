package entity

import (
	"errors"
	"fmt"
)

type Cell string

const (
	EmptyCell Cell = ""
	CellX     Cell = "X"
	CellO     Cell = "O"
)

type PlayerMark string

const (
	PlayerX PlayerMark = "X"
	PlayerO PlayerMark = "O"
)

// Outcome is the ledger-reported winner of a game.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeX    Outcome = "X"
	OutcomeO    Outcome = "O"
	OutcomeDraw Outcome = "-"
)

const BoardSize = 9

var ErrInvalidCell = errors.New("invalid cell index")

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

type Board [BoardSize]Cell

// GameID is assigned by the ledger on game creation. The zero value means unset.
type GameID string

func (that GameID) IsSet() bool {
	return that != ""
}

// GameState is the ledger-confirmed view of a game. It is only ever replaced as a whole.
type GameState struct {
	Board         Board      `json:"board"`
	CurrentPlayer PlayerMark `json:"current_player"`
	Winner        Outcome    `json:"winner"`
}

// NewGameState returns the state of a game before any move was confirmed.
func NewGameState() GameState {
	return GameState{CurrentPlayer: PlayerX}
}

func ValidateCell(cell int) error {
	if cell < 0 || cell >= BoardSize {
		return fmt.Errorf("%w: cell %d", ErrInvalidCell, cell)
	}

	return nil
}

func (that PlayerMark) Cell() Cell {
	return Cell(that)
}

func (that PlayerMark) Opponent() PlayerMark {
	if that == PlayerX {
		return PlayerO
	}
	return PlayerX
}

func (that PlayerMark) IsValid() bool {
	return that == PlayerX || that == PlayerO
}

// MarkForMove returns the mark that plays after moveIndex completed moves. X moves on even counts.
func MarkForMove(moveIndex int) PlayerMark {
	if moveIndex%2 == 0 {
		return PlayerX
	}
	return PlayerO
}

func (that Board) IsEmptyAt(cell int) bool {
	return ValidateCell(cell) == nil && that[cell] == EmptyCell
}

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell == EmptyCell {
			return false
		}
	}

	return true
}

// With returns a copy of the board with cell set to value.
func (that Board) With(cell int, value Cell) Board {
	that[cell] = value
	return that
}

// Diff returns the indexes where the two boards disagree.
func (that Board) Diff(other Board) []int {
	var cells []int
	for i := range that {
		if that[i] != other[i] {
			cells = append(cells, i)
		}
	}

	return cells
}

// Extends reports whether every mark of prev is also on this board.
func (that Board) Extends(prev Board) bool {
	for i, cell := range prev {
		if cell != EmptyCell && that[i] != cell {
			return false
		}
	}

	return true
}

func (that Board) MoveCount() int {
	count := 0
	for _, cell := range that {
		if cell != EmptyCell {
			count++
		}
	}

	return count
}

// DetermineResult applies the standard win/draw rules to the board.
func (that Board) DetermineResult() Outcome {
	for _, combo := range WinCombos {
		a, b, c := that[combo[0]], that[combo[1]], that[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return Outcome(a)
		}
	}

	// the game will continue until all the squares are full
	if !that.IsFull() {
		return OutcomeNone
	}

	return OutcomeDraw
}

func (that GameState) IsFinished() bool {
	return that.Winner != OutcomeNone || that.Board.IsFull()
}

func (that GameState) IsDraw() bool {
	return that.Winner == OutcomeDraw || (that.Winner == OutcomeNone && that.Board.IsFull())
}
