package projection

import (
	"fmt"
	"sync"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/coordinator"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

// Input is everything the UI state is derived from. It is comparable so identical inputs can be memoized.
type Input struct {
	Game   entity.GameState
	Viewed entity.HistorySnapshot
	State  coordinator.State
	// FeeDisplay is the rendered fee of the attempt in flight, empty when there is none.
	FeeDisplay string
}

type UIState struct {
	Cells               entity.Board `json:"cells"`
	StatusText          string       `json:"status_text"`
	IsLoading           bool         `json:"is_loading"`
	EstimatedFeeDisplay string       `json:"estimated_fee_display,omitempty"`
}

type Move struct {
	Index   int    `json:"index"`
	Label   string `json:"label"`
	Current bool   `json:"current"`
}

// View is what the rendering layers consume.
type View struct {
	UIState
	GameID  entity.GameID       `json:"game_id"`
	Moves   []Move              `json:"moves"`
	Notice  *coordinator.Notice `json:"notice,omitempty"`
	Attempt *entity.MoveAttempt `json:"attempt,omitempty"`
	Last    *entity.MoveAttempt `json:"last_attempt,omitempty"`
	Version uint64              `json:"version"`
}

// Compute derives the UI state. It has no side effects.
func Compute(in Input) UIState {
	ui := UIState{
		Cells:      in.Viewed.Board,
		StatusText: statusText(in.Game, in.Viewed),
		IsLoading:  in.State != coordinator.Idle,
	}

	if in.State == coordinator.Estimating || in.State == coordinator.AwaitingSubmission {
		ui.EstimatedFeeDisplay = in.FeeDisplay
	}

	return ui
}

func statusText(game entity.GameState, viewed entity.HistorySnapshot) string {
	switch {
	case game.Winner == entity.OutcomeX || game.Winner == entity.OutcomeO:
		return fmt.Sprintf("Winner: %s", game.Winner)
	case game.IsDraw():
		return "Draw"
	default:
		return fmt.Sprintf("Next player: %s", entity.MarkForMove(viewed.MoveIndex))
	}
}

func MoveLabel(move int) string {
	if move == 0 {
		return "Go to game start"
	}

	return fmt.Sprintf("Go to move #%d", move)
}

// Projector memoizes Compute on the last input.
type Projector struct {
	mu       sync.Mutex
	last     Input
	ui       UIState
	valid    bool
	computed int
}

func NewProjector() *Projector {
	return &Projector{}
}

func (that *Projector) Project(in Input) UIState {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.valid && that.last == in {
		return that.ui
	}

	that.last = in
	that.ui = Compute(in)
	that.valid = true
	that.computed++

	return that.ui
}

// View projects a coordinator snapshot.
func (that *Projector) View(id entity.GameID, snapshot coordinator.Snapshot) View {
	in := Input{
		Game:   snapshot.Game,
		Viewed: snapshot.Viewed(),
		State:  snapshot.State,
	}

	if snapshot.Fee != nil {
		in.FeeDisplay = snapshot.Fee.Display()
	}

	moves := make([]Move, len(snapshot.History))
	for i := range snapshot.History {
		moves[i] = Move{Index: i, Label: MoveLabel(i), Current: i == snapshot.Pointer}
	}

	return View{
		UIState: that.Project(in),
		GameID:  id,
		Moves:   moves,
		Notice:  snapshot.Notice,
		Attempt: snapshot.Attempt,
		Last:    snapshot.LastAttempt,
		Version: snapshot.Version,
	}
}
