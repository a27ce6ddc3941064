package entity

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptRejected  AttemptStatus = "rejected"
	AttemptFailed    AttemptStatus = "failed"
)

// Identity is the ledger account the client signs transactions with.
type Identity struct {
	Address string `json:"address"`
}

// FeeEstimate is the expected cost of a move transaction.
type FeeEstimate struct {
	Gas      uint64
	GasPrice *big.Int // wei per gas unit
}

var weiPerGwei = big.NewFloat(1e9)

// Gwei returns the total estimated cost, gas * price, in gwei.
func (that FeeEstimate) Gwei() string {
	price := that.GasPrice
	if price == nil {
		price = new(big.Int)
	}

	total := new(big.Int).Mul(new(big.Int).SetUint64(that.Gas), price)
	gwei := new(big.Float).Quo(new(big.Float).SetInt(total), weiPerGwei)

	return gwei.Text('f', -1)
}

func (that FeeEstimate) Display() string {
	return fmt.Sprintf("Estimated Gas Cost: %s gwei", that.Gwei())
}

// MoveAttempt is one user-initiated move travelling through the ledger.
type MoveAttempt struct {
	ID          string        `json:"id"`
	TargetIndex int           `json:"target_index"`
	SubmittedBy PlayerMark    `json:"submitted_by"`
	Status      AttemptStatus `json:"status"`
	TxHash      string        `json:"tx_hash,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func NewMoveAttempt(cell int, mark PlayerMark) *MoveAttempt {
	return &MoveAttempt{
		ID:          uuid.NewString(),
		TargetIndex: cell,
		SubmittedBy: mark,
		Status:      AttemptPending,
		CreatedAt:   time.Now(),
	}
}
