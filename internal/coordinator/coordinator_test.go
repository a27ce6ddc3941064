package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/config"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/history"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/ledger"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/session"
)

const (
	gameID  entity.GameID = "1"
	account               = "0x00000000000000000000000000000000000000a1"
	waitFor               = 2 * time.Second
	tick                  = time.Millisecond
)

var (
	identity   = entity.Identity{Address: account}
	errNetwork = errors.New("connection reset")
	testFee    = entity.FeeEstimate{Gas: 50000, GasPrice: big.NewInt(1_000_000_000)}
	testConf   = config.Coordinator{
		RefreshAttempts:  3,
		RefreshBaseDelay: time.Millisecond,
		RefreshMaxDelay:  4 * time.Millisecond,
	}
)

type ledgerMock struct {
	mock.Mock
}

func (that *ledgerMock) CreateGame(ctx context.Context) (entity.GameID, error) {
	args := that.Called(ctx)
	return args.Get(0).(entity.GameID), args.Error(1)
}

func (that *ledgerMock) ReadBoard(ctx context.Context, id entity.GameID) (entity.Board, error) {
	args := that.Called(ctx, id)
	return args.Get(0).(entity.Board), args.Error(1)
}

func (that *ledgerMock) ReadCurrentPlayer(ctx context.Context, id entity.GameID) (entity.PlayerMark, error) {
	args := that.Called(ctx, id)
	return args.Get(0).(entity.PlayerMark), args.Error(1)
}

func (that *ledgerMock) ReadWinner(ctx context.Context, id entity.GameID) (entity.Outcome, error) {
	args := that.Called(ctx, id)
	return args.Get(0).(entity.Outcome), args.Error(1)
}

func (that *ledgerMock) EstimateMoveFee(ctx context.Context, id entity.GameID, cell int, identity entity.Identity) (entity.FeeEstimate, error) {
	args := that.Called(ctx, id, cell, identity)
	return args.Get(0).(entity.FeeEstimate), args.Error(1)
}

func (that *ledgerMock) SubmitMove(ctx context.Context, id entity.GameID, cell int, identity entity.Identity) (<-chan entity.TxEvent, error) {
	args := that.Called(ctx, id, cell, identity)
	events, _ := args.Get(0).(<-chan entity.TxEvent)
	return events, args.Error(1)
}

// onRead scripts the three reads of one refresh.
func (that *ledgerMock) onRead(state entity.GameState) {
	that.On("ReadBoard", mock.Anything, gameID).Return(state.Board, nil)
	that.On("ReadCurrentPlayer", mock.Anything, gameID).Return(state.CurrentPlayer, nil)
	that.On("ReadWinner", mock.Anything, gameID).Return(state.Winner, nil)
}

type fixture struct {
	ledger *ledgerMock
	coord  *Coordinator
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFixture(t *testing.T, conf config.Coordinator, initial entity.GameState, snapshots ...entity.HistorySnapshot) *fixture {
	t.Helper()

	ledgerClient := &ledgerMock{}

	sess := session.New(testLogger(), ledgerClient)
	require.NoError(t, sess.Attach(gameID))
	sess.Apply(initial)

	store := history.NewStore()
	if len(snapshots) > 0 {
		require.NoError(t, store.Restore(snapshots, len(snapshots)-1))
	}

	coord := New(testLogger(), conf, ledgerClient, sess, store, identity)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = coord.Run(ctx)
	}()

	return &fixture{ledger: ledgerClient, coord: coord}
}

func (that *fixture) click(t *testing.T, cell int) {
	t.Helper()
	require.NoError(t, that.coord.Submit(CellClicked{Index: cell}))
}

func (that *fixture) waitFor(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()

	var snapshot Snapshot
	require.Eventually(t, func() bool {
		snapshot = that.coord.Snapshot()
		return cond(snapshot)
	}, waitFor, tick)

	return snapshot
}

// flush waits until every event submitted before it was handled.
func (that *fixture) flush(t *testing.T) Snapshot {
	t.Helper()

	version := that.coord.Snapshot().Version
	require.NoError(t, that.coord.Submit(NoticeDismissed{}))

	return that.waitFor(t, func(s Snapshot) bool { return s.Version > version })
}

func finished(s Snapshot) bool {
	return s.IsIdle() && s.LastAttempt != nil
}

func txStream(events ...entity.TxEvent) chan entity.TxEvent {
	ch := make(chan entity.TxEvent, len(events)+4)
	for _, event := range events {
		ch <- event
	}

	return ch
}

func hashEvent(hash string) entity.TxEvent {
	return entity.TxEvent{Kind: entity.TxEventHash, TxHash: hash}
}

func receiptEvent(hash string, succeeded bool) entity.TxEvent {
	return entity.TxEvent{
		Kind:    entity.TxEventReceipt,
		TxHash:  hash,
		Receipt: &entity.TxReceipt{TxHash: hash, BlockNumber: 1, Succeeded: succeeded},
	}
}

func historyOf(t *testing.T, cells ...int) []entity.HistorySnapshot {
	t.Helper()

	store := history.NewStore()
	for _, cell := range cells {
		_, err := store.Play(cell, entity.MarkForMove(store.Pointer()))
		require.NoError(t, err)
	}

	return store.Snapshots()
}

func TestCoordinator_ConfirmedMove(t *testing.T) {
	// Given: an empty board with X to move
	f := newFixture(t, testConf, entity.NewGameState())

	stream := txStream(hashEvent("0xa"), receiptEvent("0xa", true))
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.onRead(entity.GameState{Board: entity.Board{}.With(4, entity.CellX), CurrentPlayer: entity.PlayerO})

	// When: X clicks the center
	f.click(t, 4)

	// Then: the attempt is confirmed and history grows by one snapshot
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptConfirmed, snapshot.LastAttempt.Status)
	assert.Equal(t, "0xa", snapshot.LastAttempt.TxHash)
	assert.Equal(t, entity.PlayerX, snapshot.LastAttempt.SubmittedBy)
	assert.Nil(t, snapshot.Notice)
	assert.Nil(t, snapshot.Fee)

	require.Len(t, snapshot.History, 2)
	assert.Equal(t, entity.CellX, snapshot.History[1].Board[4])
	assert.Equal(t, 1, snapshot.Pointer)
	assert.Equal(t, entity.PlayerO, snapshot.Game.CurrentPlayer)

	f.ledger.AssertNumberOfCalls(t, "ReadBoard", 1)
}

func TestCoordinator_PendingLifecycle(t *testing.T) {
	// Given: a submission whose events the test releases one by one
	f := newFixture(t, testConf, entity.NewGameState())

	stream := txStream()
	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.onRead(entity.GameState{Board: entity.Board{}.With(4, entity.CellX), CurrentPlayer: entity.PlayerO})

	f.click(t, 4)

	t.Run("Fee is shown while awaiting submission", func(t *testing.T) {
		snapshot := f.waitFor(t, func(s Snapshot) bool { return s.State == AwaitingSubmission })

		require.NotNil(t, snapshot.Fee)
		assert.Equal(t, "Estimated Gas Cost: 50000 gwei", snapshot.Fee.Display())
		require.NotNil(t, snapshot.Attempt)
		assert.Equal(t, entity.AttemptPending, snapshot.Attempt.Status)
		assert.Equal(t, entity.Board{}, snapshot.Game.Board)
	})

	t.Run("Hash moves the attempt to Pending without touching the board", func(t *testing.T) {
		stream <- hashEvent("0xa")

		snapshot := f.waitFor(t, func(s Snapshot) bool { return s.State == Pending })

		assert.Equal(t, "0xa", snapshot.Attempt.TxHash)
		assert.Nil(t, snapshot.Fee)
		assert.Equal(t, entity.Board{}, snapshot.Game.Board)
		assert.Len(t, snapshot.History, 1)
	})

	t.Run("Click while pending is discarded", func(t *testing.T) {
		f.click(t, 0)

		stream <- receiptEvent("0xa", true)
		close(stream)

		snapshot := f.waitFor(t, finished)

		assert.Equal(t, entity.AttemptConfirmed, snapshot.LastAttempt.Status)
		assert.Equal(t, 4, snapshot.LastAttempt.TargetIndex)
		f.ledger.AssertNumberOfCalls(t, "EstimateMoveFee", 1)
		f.ledger.AssertNotCalled(t, "EstimateMoveFee", mock.Anything, gameID, 0, identity)
	})
}

func TestCoordinator_RejectedMove(t *testing.T) {
	// Given: a transaction that is mined but reverted by the contract
	f := newFixture(t, testConf, entity.NewGameState())

	stream := txStream(hashEvent("0xb"), receiptEvent("0xb", false))
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.onRead(entity.NewGameState())

	// When: X clicks the center
	f.click(t, 4)

	// Then: the re-read board still has the cell empty, so the move is rejected
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptRejected, snapshot.LastAttempt.Status)
	require.NotNil(t, snapshot.Notice)
	assert.Equal(t, NoticeMoveRejected, snapshot.Notice.Kind)
	assert.Equal(t, "move not accepted", snapshot.Notice.Message)
	assert.Len(t, snapshot.History, 1)
	assert.Equal(t, entity.NewGameState(), snapshot.Game)

	t.Run("Notice can be dismissed", func(t *testing.T) {
		snapshot := f.flush(t)

		assert.Nil(t, snapshot.Notice)
	})
}

func TestCoordinator_RefreshBudgetExhausted(t *testing.T) {
	// Given: a confirmed receipt and a ledger that cannot be read
	initial := entity.NewGameState()
	f := newFixture(t, testConf, initial)

	stream := txStream(hashEvent("0xc"), receiptEvent("0xc", true))
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.On("ReadBoard", mock.Anything, gameID).Return(entity.Board{}, errNetwork)

	// When: X clicks the center
	f.click(t, 4)

	// Then: after three refresh failures the attempt fails and the confirmed state is untouched
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptFailed, snapshot.LastAttempt.Status)
	require.NotNil(t, snapshot.Notice)
	assert.Equal(t, NoticeAttemptTimeout, snapshot.Notice.Kind)
	assert.Equal(t, "unable to confirm move", snapshot.Notice.Message)
	assert.Equal(t, initial, snapshot.Game)
	assert.Len(t, snapshot.History, 1)

	f.ledger.AssertNumberOfCalls(t, "ReadBoard", 3)
	f.ledger.AssertNotCalled(t, "ReadWinner", mock.Anything, gameID)
}

func TestCoordinator_RefreshRecovers(t *testing.T) {
	// Given: a ledger read that fails twice then succeeds
	f := newFixture(t, testConf, entity.NewGameState())

	stream := txStream(hashEvent("0xd"), receiptEvent("0xd", true))
	close(stream)

	confirmed := entity.GameState{Board: entity.Board{}.With(4, entity.CellX), CurrentPlayer: entity.PlayerO}

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.On("ReadBoard", mock.Anything, gameID).Return(entity.Board{}, errNetwork).Twice()
	f.ledger.onRead(confirmed)

	f.click(t, 4)

	// Then: the third refresh confirms the move
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptConfirmed, snapshot.LastAttempt.Status)
	assert.Equal(t, confirmed, snapshot.Game)
	f.ledger.AssertNumberOfCalls(t, "ReadBoard", 3)
}

func TestCoordinator_EstimationFailure(t *testing.T) {
	// Given: estimation fails once, then the submission itself fails
	f := newFixture(t, testConf, entity.NewGameState())

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(entity.FeeEstimate{}, errNetwork).Once()

	// When: X clicks the center
	f.click(t, 4)

	// Then: the attempt fails before any transaction and a notice is shown
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptFailed, snapshot.LastAttempt.Status)
	require.NotNil(t, snapshot.Notice)
	assert.Equal(t, NoticeEstimationFailed, snapshot.Notice.Kind)
	assert.Equal(t, "fee estimation failed", snapshot.Notice.Message)
	f.ledger.AssertNotCalled(t, "SubmitMove", mock.Anything, gameID, 4, identity)

	t.Run("A new click is a new attempt", func(t *testing.T) {
		f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
		f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return(nil, errNetwork).Once()

		previous := snapshot.LastAttempt.ID
		f.click(t, 4)

		snapshot := f.waitFor(t, func(s Snapshot) bool { return finished(s) && s.LastAttempt.ID != previous })

		assert.Equal(t, entity.AttemptFailed, snapshot.LastAttempt.Status)
		assert.Equal(t, NoticeTransactionFailed, snapshot.Notice.Kind)
		f.ledger.AssertNumberOfCalls(t, "EstimateMoveFee", 2)
		f.ledger.AssertNotCalled(t, "ReadBoard", mock.Anything, gameID)
	})
}

func TestCoordinator_TransactionError(t *testing.T) {
	// Given: a stream reporting an error after the hash
	f := newFixture(t, testConf, entity.NewGameState())

	stream := txStream(hashEvent("0xe"), entity.TxEvent{Kind: entity.TxEventError, TxHash: "0xe", Err: errNetwork})
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()

	f.click(t, 4)

	// Then: the attempt fails and nothing is read or recorded
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptFailed, snapshot.LastAttempt.Status)
	assert.Equal(t, "0xe", snapshot.LastAttempt.TxHash)
	assert.Equal(t, NoticeTransactionFailed, snapshot.Notice.Kind)
	assert.Len(t, snapshot.History, 1)
	f.ledger.AssertNotCalled(t, "ReadBoard", mock.Anything, gameID)
}

func TestCoordinator_StreamClosedWithoutReceipt(t *testing.T) {
	f := newFixture(t, testConf, entity.NewGameState())

	stream := txStream(hashEvent("0xf"))
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()

	f.click(t, 4)

	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptFailed, snapshot.LastAttempt.Status)
	assert.Equal(t, NoticeTransactionFailed, snapshot.Notice.Kind)
}

func TestCoordinator_InvalidClicksNeverEstimate(t *testing.T) {
	board := entity.Board{}.With(4, entity.CellX)
	drawnBoard := entity.Board{
		entity.CellX, entity.CellO, entity.CellX,
		entity.CellX, entity.CellO, entity.CellO,
		entity.CellO, entity.CellX, entity.CellX,
	}

	tests := []struct {
		name  string
		state entity.GameState
		cell  int
	}{
		{name: "Occupied cell", state: entity.GameState{Board: board, CurrentPlayer: entity.PlayerX}, cell: 4},
		{name: "Out of range", state: entity.NewGameState(), cell: 9},
		{name: "Negative index", state: entity.NewGameState(), cell: -1},
		{name: "Finished game", state: entity.GameState{Board: board, CurrentPlayer: entity.PlayerX, Winner: entity.OutcomeO}, cell: 0},
		{name: "Out of turn", state: entity.GameState{CurrentPlayer: entity.PlayerO}, cell: 0},
		{name: "Full board", state: entity.GameState{Board: drawnBoard, CurrentPlayer: entity.PlayerO}, cell: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a confirmed state the click violates
			f := newFixture(t, testConf, tt.state)

			// When: the cell is clicked
			f.click(t, tt.cell)
			snapshot := f.flush(t)

			// Then: no attempt was started and the ledger was never asked for a fee
			assert.Equal(t, Idle, snapshot.State)
			assert.Nil(t, snapshot.Attempt)
			assert.Nil(t, snapshot.LastAttempt)
			f.ledger.AssertNotCalled(t, "EstimateMoveFee", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCoordinator_DuplicateReceipt(t *testing.T) {
	// Given: a stream that repeats its receipt
	f := newFixture(t, testConf, entity.NewGameState())

	receipt := receiptEvent("0xa", true)
	stream := txStream(hashEvent("0xa"), receipt, receipt, hashEvent("0xa"))
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.onRead(entity.GameState{Board: entity.Board{}.With(4, entity.CellX), CurrentPlayer: entity.PlayerO})

	f.click(t, 4)
	snapshot := f.waitFor(t, finished)
	attemptID := snapshot.LastAttempt.ID

	// When: the confirmation is replayed once more after the attempt ended
	f.coord.post(txEventReceived{attemptID: attemptID, tx: receipt})
	f.coord.post(refreshDone{attemptID: attemptID, state: entity.GameState{Board: entity.Board{}.With(4, entity.CellX)}})
	snapshot = f.flush(t)

	// Then: it was applied exactly once
	assert.Equal(t, entity.AttemptConfirmed, snapshot.LastAttempt.Status)
	assert.Len(t, snapshot.History, 2)
	assert.Equal(t, entity.PlayerO, snapshot.Game.CurrentPlayer)
	f.ledger.AssertNumberOfCalls(t, "ReadBoard", 1)
}

func TestCoordinator_PendingTimeout(t *testing.T) {
	// Given: a local ceiling on how long a transaction may stay unconfirmed
	conf := testConf
	conf.PendingTimeout = 20 * time.Millisecond

	f := newFixture(t, conf, entity.NewGameState())

	late := txStream(hashEvent("0x1"))

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(late), nil).Once()

	// When: no receipt arrives in time
	f.click(t, 4)

	// Then: the attempt is failed locally
	snapshot := f.waitFor(t, finished)
	assert.Equal(t, entity.AttemptFailed, snapshot.LastAttempt.Status)
	assert.Equal(t, "0x1", snapshot.LastAttempt.TxHash)
	assert.Equal(t, NoticeAttemptTimeout, snapshot.Notice.Kind)

	t.Run("Late receipt does not resurrect the attempt", func(t *testing.T) {
		// When: the receipt of the timed out transaction shows up
		late <- receiptEvent("0x1", true)
		after := f.flush(t)

		// Then: it is ignored
		assert.Equal(t, Idle, after.State)
		assert.Nil(t, after.Attempt)
		assert.Equal(t, snapshot.LastAttempt, after.LastAttempt)
		assert.Len(t, after.History, 1)
		f.ledger.AssertNotCalled(t, "ReadBoard", mock.Anything, gameID)
	})
}

func TestCoordinator_SubmissionTimeout(t *testing.T) {
	// Given: a submission that never reports a transaction hash
	conf := testConf
	conf.PendingTimeout = 20 * time.Millisecond

	f := newFixture(t, conf, entity.NewGameState())

	hanging := txStream()
	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 4, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 4, identity).Return((<-chan entity.TxEvent)(hanging), nil).Once()

	// When: X clicks the center
	f.click(t, 4)

	// Then: the ceiling also ends the attempt while it waits for submission
	snapshot := f.waitFor(t, finished)
	assert.Equal(t, entity.AttemptFailed, snapshot.LastAttempt.Status)
	assert.Empty(t, snapshot.LastAttempt.TxHash)
	assert.Equal(t, NoticeAttemptTimeout, snapshot.Notice.Kind)
	assert.Equal(t, entity.NewGameState(), snapshot.Game)
}

// The ledger here reports X to play after five moves, a state the contract never reaches. It isolates the
// branch truncation from the turn check, see TestCoordinator_BranchOnConsistentLedger for the real case.
func TestCoordinator_BranchFromEarlierMove(t *testing.T) {
	// Given: five confirmed moves and a ledger that lets X play next
	snapshots := historyOf(t, 0, 1, 2, 3, 4)
	tip := snapshots[len(snapshots)-1].Board

	f := newFixture(t, testConf, entity.GameState{Board: tip, CurrentPlayer: entity.PlayerX}, snapshots...)

	stream := txStream(hashEvent("0xa"), receiptEvent("0xa", true))
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 8, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 8, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.onRead(entity.GameState{Board: tip.With(8, entity.CellX), CurrentPlayer: entity.PlayerO})

	// When: the user jumps to move 2 and plays a confirmed move
	require.NoError(t, f.coord.Submit(HistoryJumped{Move: 2}))
	f.click(t, 8)

	// Then: moves 3, 4 and 5 are replaced by the new one
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptConfirmed, snapshot.LastAttempt.Status)
	require.Len(t, snapshot.History, 4)
	assert.Equal(t, snapshots[:3], snapshot.History[:3])
	assert.Equal(t, snapshots[2].Board.With(8, entity.CellX), snapshot.History[3].Board)
	assert.Equal(t, 3, snapshot.Pointer)
}

func TestCoordinator_BranchOnConsistentLedger(t *testing.T) {
	// Given: five confirmed moves, the ledger has O to play
	snapshots := historyOf(t, 0, 1, 2, 3, 4)
	tip := snapshots[len(snapshots)-1].Board

	f := newFixture(t, testConf, entity.GameState{Board: tip, CurrentPlayer: entity.PlayerO}, snapshots...)

	stream := txStream(hashEvent("0xb"), receiptEvent("0xb", true))
	close(stream)

	f.ledger.On("EstimateMoveFee", mock.Anything, gameID, 8, identity).Return(testFee, nil).Once()
	f.ledger.On("SubmitMove", mock.Anything, gameID, 8, identity).Return((<-chan entity.TxEvent)(stream), nil).Once()
	f.ledger.onRead(entity.GameState{Board: tip.With(8, entity.CellO), CurrentPlayer: entity.PlayerX})

	t.Run("Move of the other parity is refused", func(t *testing.T) {
		// When: the user jumps to move 2, where X would play
		require.NoError(t, f.coord.Submit(HistoryJumped{Move: 2}))
		f.flush(t)
		f.click(t, 8)
		snapshot := f.flush(t)

		// Then: no attempt is started
		assert.Nil(t, snapshot.LastAttempt)
		f.ledger.AssertNotCalled(t, "EstimateMoveFee", mock.Anything, gameID, 8, identity)
	})

	// When: the user jumps to move 1, where O plays, and the move is confirmed
	require.NoError(t, f.coord.Submit(HistoryJumped{Move: 1}))
	f.click(t, 8)

	// Then: moves 2 to 5 are replaced by the new one
	snapshot := f.waitFor(t, finished)

	assert.Equal(t, entity.AttemptConfirmed, snapshot.LastAttempt.Status)
	assert.Equal(t, entity.PlayerO, snapshot.LastAttempt.SubmittedBy)
	require.Len(t, snapshot.History, 3)
	assert.Equal(t, snapshots[:2], snapshot.History[:2])
	assert.Equal(t, snapshots[1].Board.With(8, entity.CellO), snapshot.History[2].Board)
	assert.Equal(t, 2, snapshot.Pointer)
}

func TestCoordinator_HistoryJump(t *testing.T) {
	snapshots := historyOf(t, 4, 0)
	f := newFixture(t, testConf, entity.GameState{Board: snapshots[2].Board, CurrentPlayer: entity.PlayerX}, snapshots...)

	t.Run("Moves the pointer", func(t *testing.T) {
		require.NoError(t, f.coord.Submit(HistoryJumped{Move: 0}))
		snapshot := f.flush(t)

		assert.Equal(t, 0, snapshot.Pointer)
		assert.Equal(t, entity.Board{}, snapshot.Viewed().Board)
		assert.Len(t, snapshot.History, 3)
	})

	t.Run("Out of range is ignored", func(t *testing.T) {
		require.NoError(t, f.coord.Submit(HistoryJumped{Move: 7}))
		snapshot := f.flush(t)

		assert.Equal(t, 0, snapshot.Pointer)
	})
}

func TestCoordinator_DrawAgainstSimulatedLedger(t *testing.T) {
	// Given: a game on the simulated contract
	sim := ledger.NewSimulated(testLogger(), account, 0)

	sess := session.New(testLogger(), sim)
	_, err := sess.Create(context.Background())
	require.NoError(t, err)
	_, err = sess.Refresh(context.Background())
	require.NoError(t, err)

	coord := New(testLogger(), testConf, sim, sess, history.NewStore(), identity)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = coord.Run(ctx)
	}()

	f := &fixture{coord: coord}

	// When: nine moves are confirmed without a line
	for i, cell := range []int{0, 1, 2, 4, 3, 5, 7, 6, 8} {
		f.click(t, cell)
		f.waitFor(t, func(s Snapshot) bool { return s.IsIdle() && len(s.History) == i+2 })
	}

	// Then: the ledger reports a draw and the history holds every move
	snapshot := coord.Snapshot()
	assert.Equal(t, entity.OutcomeDraw, snapshot.Game.Winner)
	assert.True(t, snapshot.Game.IsDraw())
	assert.Len(t, snapshot.History, 10)

	t.Run("No further click is accepted", func(t *testing.T) {
		last := snapshot.LastAttempt.ID

		f.click(t, 0)
		snapshot := f.flush(t)

		assert.Equal(t, last, snapshot.LastAttempt.ID)
		assert.Nil(t, snapshot.Attempt)
	})
}

func TestCoordinator_Submit(t *testing.T) {
	t.Run("Rejects internal events", func(t *testing.T) {
		coord := New(testLogger(), testConf, &ledgerMock{}, session.New(testLogger(), &ledgerMock{}), history.NewStore(), identity)

		require.Error(t, coord.Submit(refreshDone{}))
	})

	t.Run("Fails after the loop stopped", func(t *testing.T) {
		coord := New(testLogger(), testConf, &ledgerMock{}, session.New(testLogger(), &ledgerMock{}), history.NewStore(), identity)

		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})
		go func() {
			_ = coord.Run(ctx)
			close(stopped)
		}()
		cancel()
		<-stopped

		require.ErrorIs(t, coord.Submit(CellClicked{Index: 0}), apperror.ErrCoordinatorStopped)
	})
}

func TestRefreshBackOff(t *testing.T) {
	// Given: four tries starting at 10ms capped at 25ms
	conf := config.Coordinator{
		RefreshAttempts:  4,
		RefreshBaseDelay: 10 * time.Millisecond,
		RefreshMaxDelay:  25 * time.Millisecond,
	}

	policy := RefreshBackOff(context.Background(), conf)

	// Then: delays double without jitter and the budget ends after three retries
	assert.Equal(t, 10*time.Millisecond, policy.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, policy.NextBackOff())
	assert.Equal(t, 25*time.Millisecond, policy.NextBackOff())
	assert.Equal(t, backoff.Stop, policy.NextBackOff())

	t.Run("At least one try", func(t *testing.T) {
		policy := RefreshBackOff(context.Background(), config.Coordinator{RefreshBaseDelay: time.Millisecond})

		assert.Equal(t, backoff.Stop, policy.NextBackOff())
	})
}
