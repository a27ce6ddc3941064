package entity

type TxEventKind string

const (
	TxEventHash    TxEventKind = "transactionHash"
	TxEventReceipt TxEventKind = "receipt"
	TxEventError   TxEventKind = "error"
)

type TxReceipt struct {
	TxHash      string
	BlockNumber uint64
	// Succeeded is false when the transaction was mined but the contract call reverted.
	Succeeded bool
}

// TxEvent is one element of a move submission stream: a hash, then a receipt or an error.
type TxEvent struct {
	Kind    TxEventKind
	TxHash  string
	Receipt *TxReceipt
	Err     error
}
