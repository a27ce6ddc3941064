package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/config"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/coordinator"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/history"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/projection"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/session"
)

const journalTimeout = 5 * time.Second

type Ledger interface {
	session.Ledger
	coordinator.Ledger

	Connect(ctx context.Context) (entity.Identity, error)
}

type sessionJournal interface {
	Save(ctx context.Context, record *entity.SessionRecord) error
	GetByPlayer(ctx context.Context, player string) (*entity.SessionRecord, error)
}

// GameClient is the single-session facade the rendering layers talk to.
type GameClient struct {
	logger *slog.Logger
	conf   config.Config

	ledger    Ledger
	journal   sessionJournal
	projector *projection.Projector

	identity entity.Identity
	session  *session.GameSession
	history  *history.Store
	coord    *coordinator.Coordinator

	records       chan entity.SessionRecord
	lastJournaled string

	mu          sync.Mutex
	subscribers map[int]chan projection.View
	nextID      int
}

// NewGameClient - journal may be nil, sessions are then neither saved nor resumed.
func NewGameClient(logger *slog.Logger, conf config.Config, ledger Ledger, journal sessionJournal) *GameClient {
	return &GameClient{
		logger:      logger.With("component", "game_client"),
		conf:        conf,
		ledger:      ledger,
		journal:     journal,
		projector:   projection.NewProjector(),
		records:     make(chan entity.SessionRecord, 1),
		subscribers: make(map[int]chan projection.View),
	}
}

// Bootstrap connects to the ledger, resumes or creates the game and reads its state.
func (that *GameClient) Bootstrap(ctx context.Context) error {
	log := that.logger.With("method", "Bootstrap")

	identity, err := that.ledger.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to ledger: %w", err)
	}

	that.identity = identity
	that.session = session.New(that.logger, that.ledger)
	that.history = history.NewStore()

	resumed := that.resume(ctx)
	if resumed {
		if err = that.refresh(ctx); err != nil {
			log.Warn("journaled game is not readable, creating a new one", "gameID", that.session.GameID(), "error", err)
			resumed = false
		}
	}

	synced := false
	if resumed {
		// the journal may lag behind the ledger, the board read just now wins
		synced, err = that.history.SyncTo(that.session.CurrentState().Board)
		if err != nil {
			log.Warn("journaled game cannot be replayed, creating a new one", "gameID", that.session.GameID(), "error", err)
			resumed = false
		} else if synced {
			log.Info("history rebuilt from the ledger board", "gameID", that.session.GameID(), "moves", that.history.Len()-1)
		}
	}

	if !resumed {
		that.session = session.New(that.logger, that.ledger)
		that.history = history.NewStore()

		if _, err = that.session.Create(ctx); err != nil {
			return fmt.Errorf("failed to create game: %w", err)
		}

		if err = that.refresh(ctx); err != nil {
			return fmt.Errorf("failed to read game state: %w", err)
		}
	}

	that.coord = coordinator.New(that.logger, that.conf.Coordinator, that.ledger, that.session, that.history, identity)
	that.coord.OnChange(that.onChange)

	if !resumed || synced {
		that.enqueueRecord(that.coord.Snapshot())
	}

	log.Info("game session ready", "gameID", that.session.GameID(), "account", identity.Address, "resumed", resumed)

	return nil
}

// resume attaches the journaled game of this account, if resuming is enabled and one exists.
func (that *GameClient) resume(ctx context.Context) bool {
	log := that.logger.With("method", "resume", "account", that.identity.Address)

	if !that.conf.Session.Resume || that.journal == nil {
		return false
	}

	record, err := that.journal.GetByPlayer(ctx, that.identity.Address)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		log.Info("no session to resume")
		return false
	}

	if err != nil {
		log.Warn("failed to read session journal", "error", err)
		return false
	}

	if err = that.session.Attach(record.GameID); err != nil {
		log.Warn("journaled session is unusable", "error", err)
		return false
	}

	if err = that.history.Restore(record.Snapshots, record.Pointer); err != nil {
		log.Warn("journaled history is invalid, rebuilding it from the ledger board", "error", err)
	}

	log.Info("session resumed", "gameID", record.GameID, "moves", that.history.Len()-1)

	return true
}

func (that *GameClient) refresh(ctx context.Context) error {
	return backoff.RetryNotify(func() error {
		_, err := that.session.Refresh(ctx)
		return err
	}, coordinator.RefreshBackOff(ctx, that.conf.Coordinator), func(err error, next time.Duration) {
		that.logger.Warn("initial refresh failed, retrying", "error", err, "retryIn", next)
	})
}

// Run drives the coordinator and the journal writer until ctx is done.
func (that *GameClient) Run(ctx context.Context) error {
	if that.coord == nil {
		return apperror.ErrGameNotCreated
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		that.writeJournal(ctx)
	}()

	err := that.coord.Run(ctx)
	wg.Wait()

	if err != nil {
		return fmt.Errorf("coordinator stopped: %w", err)
	}

	return nil
}

func (that *GameClient) Click(index int) error {
	return that.submit(coordinator.CellClicked{Index: index})
}

func (that *GameClient) Jump(move int) error {
	return that.submit(coordinator.HistoryJumped{Move: move})
}

func (that *GameClient) DismissNotice() error {
	return that.submit(coordinator.NoticeDismissed{})
}

func (that *GameClient) submit(event coordinator.Event) error {
	if that.coord == nil {
		return apperror.ErrGameNotCreated
	}

	if err := that.coord.Submit(event); err != nil {
		return fmt.Errorf("failed to submit %T: %w", event, err)
	}

	return nil
}

func (that *GameClient) Identity() entity.Identity {
	return that.identity
}

// View is the current projection. Before Bootstrap it shows an empty board.
func (that *GameClient) View() projection.View {
	if that.coord == nil {
		return that.projector.View("", coordinator.Snapshot{
			State:   coordinator.Idle,
			Game:    entity.NewGameState(),
			History: []entity.HistorySnapshot{{}},
		})
	}

	return that.projector.View(that.session.GameID(), that.coord.Snapshot())
}

// Subscribe returns a stream of views, one after every transition. Slow readers only get the latest view.
func (that *GameClient) Subscribe() (<-chan projection.View, func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	id := that.nextID
	that.nextID++

	views := make(chan projection.View, 1)
	that.subscribers[id] = views

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			that.mu.Lock()
			defer that.mu.Unlock()

			delete(that.subscribers, id)
			close(views)
		})
	}

	return views, unsubscribe
}

// onChange runs on the coordinator loop and must not block.
func (that *GameClient) onChange(snapshot coordinator.Snapshot) {
	view := that.projector.View(that.session.GameID(), snapshot)

	that.mu.Lock()
	for _, views := range that.subscribers {
		offerLatest(views, view)
	}
	that.mu.Unlock()

	last := snapshot.LastAttempt
	if last != nil && last.Status == entity.AttemptConfirmed && last.ID != that.lastJournaled {
		that.lastJournaled = last.ID
		that.enqueueRecord(snapshot)
	}
}

func (that *GameClient) enqueueRecord(snapshot coordinator.Snapshot) {
	if that.journal == nil {
		return
	}

	offerLatest(that.records, entity.SessionRecord{
		Player:    that.identity.Address,
		GameID:    that.session.GameID(),
		Snapshots: snapshot.History,
		Pointer:   snapshot.Pointer,
	})
}

func (that *GameClient) writeJournal(ctx context.Context) {
	if that.journal == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case record := <-that.records:
			that.save(ctx, record)
		}
	}
}

func (that *GameClient) save(ctx context.Context, record entity.SessionRecord) {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	if err := that.journal.Save(ctx, &record); err != nil {
		that.logger.Error("failed to journal session", "gameID", record.GameID, "error", err)
		return
	}

	that.logger.Debug("session journaled", "gameID", record.GameID, "moves", len(record.Snapshots)-1)
}

// offerLatest - non-blocking send that replaces an unread value.
func offerLatest[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}
