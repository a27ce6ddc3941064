package history

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

// Store is the branchable list of confirmed board snapshots with a view pointer.
// Snapshot 0 is always the empty board and every later snapshot adds exactly one mark to its predecessor.
type Store struct {
	snapshots []entity.HistorySnapshot
	pointer   int
}

func NewStore() *Store {
	return &Store{
		snapshots: []entity.HistorySnapshot{{}},
	}
}

// Append pushes a snapshot at the tip and moves the view there.
func (that *Store) Append(snapshot entity.HistorySnapshot) error {
	if err := validateNext(that.snapshots[len(that.snapshots)-1], snapshot); err != nil {
		return err
	}

	that.snapshots = append(that.snapshots, snapshot)
	that.pointer = len(that.snapshots) - 1

	return nil
}

// AppendAtPointer drops every snapshot after the pointer, then appends.
func (that *Store) AppendAtPointer(snapshot entity.HistorySnapshot) error {
	if err := validateNext(that.snapshots[that.pointer], snapshot); err != nil {
		return err
	}

	that.snapshots = append(that.snapshots[:that.pointer+1:that.pointer+1], snapshot)
	that.pointer = len(that.snapshots) - 1

	return nil
}

// Play records a confirmed move as the successor of the viewed snapshot.
func (that *Store) Play(cell int, mark entity.PlayerMark) (entity.HistorySnapshot, error) {
	viewed := that.Viewed()

	if !viewed.Board.IsEmptyAt(cell) {
		return entity.HistorySnapshot{}, fmt.Errorf("%w: cell %d is taken in move %d", apperror.ErrInvalidSnapshot, cell, viewed.MoveIndex)
	}

	snapshot := entity.HistorySnapshot{
		Board:     viewed.Board.With(cell, mark.Cell()),
		MoveIndex: viewed.MoveIndex + 1,
	}

	if that.IsAtTip() {
		return snapshot, that.Append(snapshot)
	}

	return snapshot, that.AppendAtPointer(snapshot)
}

// JumpTo moves the view pointer. Stored snapshots are not touched.
func (that *Store) JumpTo(move int) error {
	if move < 0 || move >= len(that.snapshots) {
		return fmt.Errorf("%w: %d of %d", apperror.ErrInvalidMoveIndex, move, len(that.snapshots)-1)
	}

	that.pointer = move

	return nil
}

// Restore replaces the whole history, e.g. with one loaded from the journal.
func (that *Store) Restore(snapshots []entity.HistorySnapshot, pointer int) error {
	if len(snapshots) == 0 || snapshots[0] != (entity.HistorySnapshot{}) {
		return fmt.Errorf("%w: history must start with the empty board", apperror.ErrInvalidSnapshot)
	}

	for i := 1; i < len(snapshots); i++ {
		if err := validateNext(snapshots[i-1], snapshots[i]); err != nil {
			return fmt.Errorf("snapshot %d: %w", i, err)
		}
	}

	if pointer < 0 || pointer >= len(snapshots) {
		return fmt.Errorf("%w: %d of %d", apperror.ErrInvalidMoveIndex, pointer, len(snapshots)-1)
	}

	that.snapshots = append([]entity.HistorySnapshot(nil), snapshots...)
	that.pointer = pointer

	return nil
}

// SyncTo aligns the history with a board read from the ledger. Snapshots the board does not extend are
// dropped and the marks the history lacks are appended, alternating from the tip. It reports whether the
// history changed, the pointer then moves to the tip.
func (that *Store) SyncTo(board entity.Board) (bool, error) {
	keep := 1
	for keep < len(that.snapshots) && board.Extends(that.snapshots[keep].Board) {
		keep++
	}

	tip := that.snapshots[keep-1]
	if keep == len(that.snapshots) && tip.Board == board {
		return false, nil
	}

	missing := make(map[entity.Cell][]int)
	for i, cell := range board {
		if cell != entity.EmptyCell && tip.Board[i] == entity.EmptyCell {
			missing[cell] = append(missing[cell], i)
		}
	}

	snapshots := append([]entity.HistorySnapshot(nil), that.snapshots[:keep]...)
	for remaining := board.MoveCount() - tip.Board.MoveCount(); remaining > 0; remaining-- {
		mark := entity.MarkForMove(tip.MoveIndex).Cell()

		cells := missing[mark]
		if len(cells) == 0 {
			return false, fmt.Errorf("%w: board %v cannot follow move %d", apperror.ErrInvalidSnapshot, board, tip.MoveIndex)
		}

		tip = entity.HistorySnapshot{Board: tip.Board.With(cells[0], mark), MoveIndex: tip.MoveIndex + 1}
		missing[mark] = cells[1:]
		snapshots = append(snapshots, tip)
	}

	that.snapshots = snapshots
	that.pointer = len(snapshots) - 1

	return true, nil
}

// Snapshots returns a copy of the stored sequence.
func (that *Store) Snapshots() []entity.HistorySnapshot {
	return append([]entity.HistorySnapshot(nil), that.snapshots...)
}

func (that *Store) Viewed() entity.HistorySnapshot {
	return that.snapshots[that.pointer]
}

func (that *Store) Pointer() int {
	return that.pointer
}

func (that *Store) Len() int {
	return len(that.snapshots)
}

func (that *Store) IsAtTip() bool {
	return that.pointer == len(that.snapshots)-1
}

func validateNext(prev, next entity.HistorySnapshot) error {
	if next.MoveIndex != prev.MoveIndex+1 {
		return fmt.Errorf("%w: move index %d after %d", apperror.ErrInvalidSnapshot, next.MoveIndex, prev.MoveIndex)
	}

	diff := prev.Board.Diff(next.Board)
	if len(diff) != 1 || prev.Board[diff[0]] != entity.EmptyCell {
		return fmt.Errorf("%w: changed cells %v", apperror.ErrInvalidSnapshot, diff)
	}

	return nil
}
