package coordinator

import (
	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

type State string

const (
	Idle               State = "idle"
	Estimating         State = "estimating"
	AwaitingSubmission State = "awaiting_submission"
	Pending            State = "pending"
	Reconciling        State = "reconciling"
)

type NoticeKind string

const (
	NoticeEstimationFailed  NoticeKind = "estimation_failed"
	NoticeTransactionFailed NoticeKind = "transaction_failed"
	NoticeMoveRejected      NoticeKind = "move_rejected"
	NoticeAttemptTimeout    NoticeKind = "attempt_timeout"
)

// Notice is a dismissible, user visible message about the last attempt.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

var (
	estimationFailed  = Notice{Kind: NoticeEstimationFailed, Message: apperror.ErrEstimation.Error()}
	transactionFailed = Notice{Kind: NoticeTransactionFailed, Message: "transaction failed"}
	moveRejected      = Notice{Kind: NoticeMoveRejected, Message: apperror.ErrMoveRejected.Error()}
	attemptTimeout    = Notice{Kind: NoticeAttemptTimeout, Message: apperror.ErrAttemptTimeout.Error()}
)

// Snapshot is a read-only copy of everything the loop owns, taken after each transition.
type Snapshot struct {
	Version uint64
	State   State
	// Attempt is the attempt in flight, nil in Idle.
	Attempt *entity.MoveAttempt
	// LastAttempt is the most recent attempt that reached a terminal status.
	LastAttempt *entity.MoveAttempt
	Fee         *entity.FeeEstimate
	Notice      *Notice

	Game    entity.GameState
	History []entity.HistorySnapshot
	Pointer int
}

func (that Snapshot) IsIdle() bool {
	return that.State == Idle
}

// Viewed is the history snapshot the view pointer is on.
func (that Snapshot) Viewed() entity.HistorySnapshot {
	if that.Pointer < 0 || that.Pointer >= len(that.History) {
		return entity.HistorySnapshot{}
	}

	return that.History[that.Pointer]
}
