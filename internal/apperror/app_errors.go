package apperror

import "errors"

// Ledger boundary faults. Adapters wrap raw errors with one of these.
var (
	ErrNoProvider      = errors.New("no ledger provider available")
	ErrSessionCreation = errors.New("could not create game session")
	ErrLedgerRead      = errors.New("ledger read failed")
	ErrLedgerWrite     = errors.New("ledger write failed")
	ErrEstimation      = errors.New("fee estimation failed")
)

// Move attempt outcomes.
var (
	ErrMoveRejected   = errors.New("move not accepted")
	ErrAttemptTimeout = errors.New("unable to confirm move")
)

var (
	ErrInvalidMoveIndex   = errors.New("invalid move index")
	ErrInvalidSnapshot    = errors.New("snapshot must differ from its predecessor in exactly one cell")
	ErrSessionNotFound    = errors.New("session not found")
	ErrGameNotCreated     = errors.New("game is not created")
	ErrCoordinatorStopped = errors.New("coordinator is stopped")
)
