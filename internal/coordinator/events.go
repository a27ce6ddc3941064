package coordinator

import "github.com/rocketscienceinc/tictactoe-dapp/internal/entity"

// Event is anything the coordinator loop reacts to. Only the input events below can be submitted from outside.
type Event interface {
	event()
}

// CellClicked is a user click on a board cell.
type CellClicked struct {
	Index int
}

// HistoryJumped moves the history view pointer.
type HistoryJumped struct {
	Move int
}

// NoticeDismissed clears the visible notice.
type NoticeDismissed struct{}

func (CellClicked) event()     {}
func (HistoryJumped) event()   {}
func (NoticeDismissed) event() {}

// Results of work started by the loop. Each carries the attempt it belongs to, so results of an attempt that
// already ended are recognised and dropped.
type (
	estimateDone struct {
		attemptID string
		fee       entity.FeeEstimate
		err       error
	}

	txEventReceived struct {
		attemptID string
		tx        entity.TxEvent
	}

	txStreamClosed struct {
		attemptID string
	}

	refreshDone struct {
		attemptID string
		state     entity.GameState
		err       error
	}

	attemptTimedOut struct {
		attemptID string
	}
)

func (estimateDone) event()    {}
func (txEventReceived) event() {}
func (txStreamClosed) event()  {}
func (refreshDone) event()     {}
func (attemptTimedOut) event() {}
