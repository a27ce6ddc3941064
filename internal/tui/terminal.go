package tui

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/projection"
)

const boardSide = 3

type gameClient interface {
	View() projection.View
	Click(index int) error
	Jump(move int) error
	DismissNotice() error
	Subscribe() (<-chan projection.View, func())
}

// Terminal renders the game in the terminal. Enter on a board cell clicks it, enter on a move jumps to it,
// d dismisses the notice and Esc quits.
type Terminal struct {
	logger *slog.Logger
	client gameClient

	app    *tview.Application
	board  *tview.Table
	moves  *tview.List
	status *tview.TextView
	fee    *tview.TextView
	notice *tview.TextView
	layout *tview.Grid
}

func New(logger *slog.Logger, client gameClient) *Terminal {
	that := &Terminal{
		logger: logger.With("component", "tui"),
		client: client,
		app:    tview.NewApplication(),
		board:  tview.NewTable().SetBorders(true).SetSelectable(true, true),
		moves:  tview.NewList().ShowSecondaryText(false),
		status: tview.NewTextView(),
		fee:    tview.NewTextView(),
		notice: tview.NewTextView().SetTextColor(tcell.ColorYellow),
	}

	that.board.SetSelectedFunc(that.selectCell)
	that.moves.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		that.selectMove(index)
	})

	that.layout = tview.NewGrid().
		SetRows(1, 1, 1, 9, -1).
		SetColumns(15, -1).
		AddItem(that.status, 0, 0, 1, 2, 0, 0, false).
		AddItem(that.fee, 1, 0, 1, 2, 0, 0, false).
		AddItem(that.notice, 2, 0, 1, 2, 0, 0, false).
		AddItem(that.board, 3, 0, 1, 1, 0, 0, true).
		AddItem(that.moves, 3, 1, 2, 1, 0, 0, false)

	that.app.SetInputCapture(that.captureKeys)

	for row := 0; row < boardSide; row++ {
		for col := 0; col < boardSide; col++ {
			that.board.SetCell(row, col, tview.NewTableCell("   ").SetAlign(tview.AlignCenter))
		}
	}

	return that
}

// Run - blocks until ctx is done or the user quits.
func (that *Terminal) Run(ctx context.Context) error {
	views, unsubscribe := that.client.Subscribe()
	defer unsubscribe()

	that.render(that.client.View())

	go func() {
		for {
			select {
			case <-ctx.Done():
				that.app.Stop()
				return
			case view, ok := <-views:
				if !ok {
					return
				}

				that.app.QueueUpdateDraw(func() {
					that.render(view)
				})
			}
		}
	}()

	if err := that.app.SetRoot(that.layout, true).SetFocus(that.board).Run(); err != nil {
		return fmt.Errorf("failed to run terminal ui: %w", err)
	}

	return nil
}

func (that *Terminal) captureKeys(event *tcell.EventKey) *tcell.EventKey {
	switch {
	case event.Key() == tcell.KeyEscape:
		that.app.Stop()
		return nil
	case event.Key() == tcell.KeyTab:
		if that.board.HasFocus() {
			that.app.SetFocus(that.moves)
		} else {
			that.app.SetFocus(that.board)
		}
		return nil
	case event.Rune() == 'd':
		if err := that.client.DismissNotice(); err != nil {
			that.logger.Error("failed to dismiss notice", "error", err)
		}
		return nil
	}

	return event
}

func (that *Terminal) selectCell(row, col int) {
	index := row*boardSide + col
	if err := that.client.Click(index); err != nil {
		that.logger.Error("failed to submit click", "cell", index, "error", err)
	}
}

func (that *Terminal) selectMove(move int) {
	if err := that.client.Jump(move); err != nil {
		that.logger.Error("failed to submit jump", "move", move, "error", err)
	}
}

// render must run on the tview event goroutine once the application is running.
func (that *Terminal) render(view projection.View) {
	for i, cell := range view.Cells {
		that.board.GetCell(i/boardSide, i%boardSide).
			SetText(fmt.Sprintf(" %s ", cellText(cell))).
			SetTextColor(cellColor(cell))
	}

	that.status.SetText(view.StatusText)

	switch {
	case view.EstimatedFeeDisplay != "":
		that.fee.SetText(view.EstimatedFeeDisplay)
	case view.IsLoading:
		that.fee.SetText("Waiting for the ledger...")
	default:
		that.fee.SetText("")
	}

	if view.Notice != nil {
		that.notice.SetText(view.Notice.Message + " (d to dismiss)")
	} else {
		that.notice.SetText("")
	}

	that.moves.Clear()
	for _, move := range view.Moves {
		that.moves.AddItem(move.Label, "", 0, nil)
		if move.Current {
			that.moves.SetCurrentItem(move.Index)
		}
	}
}

func cellText(cell entity.Cell) string {
	if cell == entity.EmptyCell {
		return " "
	}

	return string(cell)
}

func cellColor(cell entity.Cell) tcell.Color {
	switch cell {
	case entity.CellX:
		return tcell.ColorRed
	case entity.CellO:
		return tcell.ColorBlue
	default:
		return tcell.ColorWhite
	}
}
