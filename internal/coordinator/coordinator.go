package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/config"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/history"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/session"
)

const eventBuffer = 64

type Ledger interface {
	EstimateMoveFee(ctx context.Context, id entity.GameID, cell int, identity entity.Identity) (entity.FeeEstimate, error)
	SubmitMove(ctx context.Context, id entity.GameID, cell int, identity entity.Identity) (<-chan entity.TxEvent, error)
}

// Coordinator turns clicks into move transactions and reconciles the session and history with the ledger.
//
// Every mutation of the session, the history and the attempt happens on the goroutine running Run. Ledger
// calls run on their own goroutines and report back through the event queue.
type Coordinator struct {
	logger *slog.Logger
	conf   config.Coordinator

	ledger   Ledger
	session  *session.GameSession
	history  *history.Store
	identity entity.Identity

	events   chan Event
	done     chan struct{}
	onChange func(Snapshot)

	// owned by the loop
	ctx         context.Context //nolint: containedctx // lifetime of the loop, used by the work it starts
	state       State
	attempt     *entity.MoveAttempt
	lastAttempt *entity.MoveAttempt
	preAttempt  entity.GameState
	fee         *entity.FeeEstimate
	notice      *Notice
	timer       *time.Timer
	version     uint64

	mu       sync.RWMutex
	snapshot Snapshot
}

func New(
	logger *slog.Logger,
	conf config.Coordinator,
	ledger Ledger,
	gameSession *session.GameSession,
	store *history.Store,
	identity entity.Identity,
) *Coordinator {
	that := &Coordinator{
		logger:   logger.With("component", "coordinator"),
		conf:     conf,
		ledger:   ledger,
		session:  gameSession,
		history:  store,
		identity: identity,
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		state:    Idle,
	}

	that.snapshot = that.capture()

	return that
}

// OnChange registers fn to be called from the loop after every transition. fn must not block. It has to be
// set before Run.
func (that *Coordinator) OnChange(fn func(Snapshot)) {
	that.onChange = fn
}

// Run processes events one at a time until ctx is done.
func (that *Coordinator) Run(ctx context.Context) error {
	that.ctx = ctx
	defer close(that.done)
	defer that.stopTimer()

	that.logger.Info("coordinator started", "gameID", that.session.GameID(), "account", that.identity.Address)

	for {
		select {
		case <-ctx.Done():
			that.logger.Info("coordinator stopped")
			return nil
		case event := <-that.events:
			that.handle(event)
		}
	}
}

// Submit enqueues an input event. It fails once the loop has stopped.
func (that *Coordinator) Submit(event Event) error {
	switch event.(type) {
	case CellClicked, HistoryJumped, NoticeDismissed:
	default:
		return fmt.Errorf("unsupported event %T", event)
	}

	select {
	case <-that.done:
		return apperror.ErrCoordinatorStopped
	default:
	}

	select {
	case that.events <- event:
		return nil
	case <-that.done:
		return apperror.ErrCoordinatorStopped
	}
}

// Snapshot returns the state published by the last transition.
func (that *Coordinator) Snapshot() Snapshot {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.snapshot
}

func (that *Coordinator) post(event Event) {
	select {
	case that.events <- event:
	case <-that.done:
	}
}

func (that *Coordinator) handle(event Event) {
	switch e := event.(type) {
	case CellClicked:
		that.onCellClicked(e)
	case HistoryJumped:
		that.onHistoryJumped(e)
	case NoticeDismissed:
		that.notice = nil
		that.publish()
	case estimateDone:
		that.onEstimateDone(e)
	case txEventReceived:
		that.onTxEvent(e)
	case txStreamClosed:
		that.onTxStreamClosed(e)
	case refreshDone:
		that.onRefreshDone(e)
	case attemptTimedOut:
		that.onAttemptTimedOut(e)
	}
}

func (that *Coordinator) onCellClicked(e CellClicked) {
	log := that.logger.With("method", "onCellClicked", "cell", e.Index)

	if that.state != Idle {
		log.Debug("click ignored, attempt in progress", "state", that.state)
		return
	}

	game := that.session.CurrentState()
	mark := entity.MarkForMove(that.history.Viewed().MoveIndex)

	if reason := rejectClick(that.session.GameID(), game, e.Index, mark); reason != "" {
		log.Debug("click ignored", "reason", reason, "mark", mark)
		return
	}

	that.attempt = entity.NewMoveAttempt(e.Index, mark)
	that.preAttempt = game
	that.notice = nil
	that.transition(Estimating)

	attempt := *that.attempt
	go that.estimate(that.ctx, attempt)
}

// rejectClick checks a click against the last confirmed state and returns why it is refused.
func rejectClick(id entity.GameID, game entity.GameState, cell int, mark entity.PlayerMark) string {
	switch {
	case !id.IsSet():
		return "no game"
	case entity.ValidateCell(cell) != nil:
		return "cell out of range"
	case game.IsFinished():
		return "game is finished"
	case !game.Board.IsEmptyAt(cell):
		return "cell is taken"
	case mark != game.CurrentPlayer:
		return "not this player's turn"
	default:
		return ""
	}
}

func (that *Coordinator) onHistoryJumped(e HistoryJumped) {
	log := that.logger.With("method", "onHistoryJumped", "move", e.Move)

	if that.state != Idle {
		log.Debug("jump ignored, attempt in progress", "state", that.state)
		return
	}

	if err := that.history.JumpTo(e.Move); err != nil {
		log.Warn("jump ignored", "error", err)
		return
	}

	that.publish()
}

func (that *Coordinator) onEstimateDone(e estimateDone) {
	if !that.owns(e.attemptID, Estimating) {
		that.logger.Debug("stale estimate dropped", "attemptID", e.attemptID)
		return
	}

	if e.err != nil {
		that.logger.Warn("fee estimation failed", "attemptID", e.attemptID, "error", e.err)
		that.finish(entity.AttemptFailed, &estimationFailed)
		return
	}

	fee := e.fee
	that.fee = &fee
	that.transition(AwaitingSubmission)
	that.armTimeout(*that.attempt)

	attempt := *that.attempt
	go that.submit(that.ctx, attempt)
}

func (that *Coordinator) onTxEvent(e txEventReceived) {
	log := that.logger.With("method", "onTxEvent", "attemptID", e.attemptID, "kind", e.tx.Kind, "txHash", e.tx.TxHash)

	if that.attempt == nil || that.attempt.ID != e.attemptID {
		log.Debug("event of a finished attempt dropped")
		return
	}

	switch e.tx.Kind {
	case entity.TxEventHash:
		if that.state != AwaitingSubmission {
			log.Debug("duplicate transaction hash dropped", "state", that.state)
			return
		}

		that.attempt.TxHash = e.tx.TxHash
		that.fee = nil
		that.transition(Pending)

	case entity.TxEventReceipt:
		if !that.acceptsReceipt(e.tx) {
			log.Debug("receipt dropped", "state", that.state, "pendingTxHash", that.attempt.TxHash)
			return
		}

		if that.attempt.TxHash == "" {
			that.attempt.TxHash = e.tx.TxHash
		}

		if e.tx.Receipt != nil && !e.tx.Receipt.Succeeded {
			log.Info("transaction mined with a reverted call")
		}

		that.stopTimer()
		that.fee = nil
		that.transition(Reconciling)

		attempt := *that.attempt
		go that.reconcile(that.ctx, attempt)

	case entity.TxEventError:
		if that.state != AwaitingSubmission && that.state != Pending {
			log.Debug("error dropped", "state", that.state)
			return
		}

		if e.tx.TxHash != "" && that.attempt.TxHash != "" && e.tx.TxHash != that.attempt.TxHash {
			log.Debug("error of another transaction dropped")
			return
		}

		log.Warn("transaction failed", "error", e.tx.Err)
		that.finish(entity.AttemptFailed, &transactionFailed)
	}
}

// acceptsReceipt - a receipt counts once, for the transaction the attempt is waiting on.
func (that *Coordinator) acceptsReceipt(tx entity.TxEvent) bool {
	switch that.state {
	case Pending:
		return tx.TxHash == that.attempt.TxHash
	case AwaitingSubmission:
		// the stream skipped the hash event
		return true
	default:
		return false
	}
}

func (that *Coordinator) onTxStreamClosed(e txStreamClosed) {
	if that.attempt == nil || that.attempt.ID != e.attemptID {
		return
	}

	if that.state == AwaitingSubmission || that.state == Pending {
		that.logger.Warn("transaction stream ended without receipt", "attemptID", e.attemptID, "txHash", that.attempt.TxHash)
		that.finish(entity.AttemptFailed, &transactionFailed)
	}
}

func (that *Coordinator) onRefreshDone(e refreshDone) {
	if !that.owns(e.attemptID, Reconciling) {
		that.logger.Debug("stale refresh dropped", "attemptID", e.attemptID)
		return
	}

	log := that.logger.With("method", "onRefreshDone", "attemptID", e.attemptID, "txHash", that.attempt.TxHash,
		"cell", that.attempt.TargetIndex, "mark", that.attempt.SubmittedBy)

	if e.err != nil {
		log.Warn("unable to confirm move, refresh budget exhausted", "error", e.err)
		that.finish(entity.AttemptFailed, &attemptTimeout)
		return
	}

	that.session.Apply(e.state)

	cell := that.attempt.TargetIndex
	mark := that.attempt.SubmittedBy

	if that.preAttempt.Board[cell] != entity.EmptyCell || e.state.Board[cell] != mark.Cell() {
		log.Warn("move not accepted", "got", e.state.Board[cell])
		that.finish(entity.AttemptRejected, &moveRejected)
		return
	}

	snapshot, err := that.history.Play(cell, mark)
	if err != nil {
		// the ledger confirmed the move, only the local branch could not take it
		log.Error("failed to record confirmed move", "error", err)
	} else {
		log.Debug("snapshot recorded", "moveIndex", snapshot.MoveIndex)
	}

	that.finish(entity.AttemptConfirmed, nil)
}

// onAttemptTimedOut - the ceiling runs from submission until the receipt, so a hanging submit call is covered too.
func (that *Coordinator) onAttemptTimedOut(e attemptTimedOut) {
	if !that.owns(e.attemptID, AwaitingSubmission) && !that.owns(e.attemptID, Pending) {
		return
	}

	that.logger.Warn("attempt timed out", "attemptID", e.attemptID, "state", that.state, "txHash", that.attempt.TxHash,
		"timeout", that.conf.PendingTimeout)
	that.finish(entity.AttemptFailed, &attemptTimeout)
}

func (that *Coordinator) owns(attemptID string, state State) bool {
	return that.attempt != nil && that.attempt.ID == attemptID && that.state == state
}

func (that *Coordinator) transition(next State) {
	that.logger.Debug("transition", "from", that.state, "to", next, "attemptID", that.attempt.ID)
	that.state = next
	that.publish()
}

// finish ends the attempt in flight and returns to Idle. The confirmed game state is never rolled back here.
func (that *Coordinator) finish(status entity.AttemptStatus, notice *Notice) {
	that.stopTimer()

	that.attempt.Status = status
	ended := *that.attempt
	that.lastAttempt = &ended

	that.logger.Info("attempt finished", "attemptID", ended.ID, "status", status, "txHash", ended.TxHash,
		"cell", ended.TargetIndex, "mark", ended.SubmittedBy)

	that.attempt = nil
	that.fee = nil
	that.notice = notice
	that.state = Idle
	that.publish()
}

func (that *Coordinator) armTimeout(attempt entity.MoveAttempt) {
	if that.conf.PendingTimeout <= 0 {
		return
	}

	that.timer = time.AfterFunc(that.conf.PendingTimeout, func() {
		that.post(attemptTimedOut{attemptID: attempt.ID})
	})
}

func (that *Coordinator) stopTimer() {
	if that.timer != nil {
		that.timer.Stop()
		that.timer = nil
	}
}

func (that *Coordinator) publish() {
	that.version++
	snapshot := that.capture()

	that.mu.Lock()
	that.snapshot = snapshot
	that.mu.Unlock()

	if that.onChange != nil {
		that.onChange(snapshot)
	}
}

func (that *Coordinator) capture() Snapshot {
	snapshot := Snapshot{
		Version: that.version,
		State:   that.state,
		Game:    that.session.CurrentState(),
		History: that.history.Snapshots(),
		Pointer: that.history.Pointer(),
	}

	if that.attempt != nil {
		attempt := *that.attempt
		snapshot.Attempt = &attempt
	}

	if that.lastAttempt != nil {
		attempt := *that.lastAttempt
		snapshot.LastAttempt = &attempt
	}

	if that.fee != nil {
		fee := *that.fee
		snapshot.Fee = &fee
	}

	if that.notice != nil {
		notice := *that.notice
		snapshot.Notice = &notice
	}

	return snapshot
}

func (that *Coordinator) estimate(ctx context.Context, attempt entity.MoveAttempt) {
	fee, err := that.ledger.EstimateMoveFee(ctx, that.session.GameID(), attempt.TargetIndex, that.identity)
	that.post(estimateDone{attemptID: attempt.ID, fee: fee, err: err})
}

func (that *Coordinator) submit(ctx context.Context, attempt entity.MoveAttempt) {
	events, err := that.ledger.SubmitMove(ctx, that.session.GameID(), attempt.TargetIndex, that.identity)
	if err != nil {
		that.post(txEventReceived{attemptID: attempt.ID, tx: entity.TxEvent{Kind: entity.TxEventError, Err: err}})
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case tx, ok := <-events:
			if !ok {
				that.post(txStreamClosed{attemptID: attempt.ID})
				return
			}
			that.post(txEventReceived{attemptID: attempt.ID, tx: tx})
		}
	}
}

// reconcile re-reads the game with bounded exponential backoff.
func (that *Coordinator) reconcile(ctx context.Context, attempt entity.MoveAttempt) {
	log := that.logger.With("method", "reconcile", "attemptID", attempt.ID, "txHash", attempt.TxHash)

	var state entity.GameState
	operation := func() error {
		fetched, err := that.session.Fetch(ctx)
		if err != nil {
			return err
		}

		state = fetched
		return nil
	}

	notify := func(err error, next time.Duration) {
		log.Warn("refresh failed, retrying", "error", err, "retryIn", next)
	}

	err := backoff.RetryNotify(operation, RefreshBackOff(ctx, that.conf), notify)
	that.post(refreshDone{attemptID: attempt.ID, state: state, err: err})
}

// RefreshBackOff is the retry policy of ledger refreshes: RefreshAttempts tries in total, the delay starting at
// RefreshBaseDelay and doubling up to RefreshMaxDelay, no jitter.
func RefreshBackOff(ctx context.Context, conf config.Coordinator) backoff.BackOff {
	attempts := conf.RefreshAttempts
	if attempts < 1 {
		attempts = 1
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = conf.RefreshBaseDelay
	exponential.MaxInterval = conf.RefreshMaxDelay
	exponential.Multiplier = 2
	exponential.RandomizationFactor = 0
	exponential.MaxElapsedTime = 0
	exponential.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(attempts-1)), ctx) //nolint: gosec // attempts >= 1
}
