package entity

import "time"

type HistorySnapshot struct {
	Board     Board `json:"board"`
	MoveIndex int   `json:"move_index"`
}

// SessionRecord is what the journal keeps per account so a session can be resumed.
type SessionRecord struct {
	Player    string            `json:"player"`
	GameID    GameID            `json:"game_id"`
	Snapshots []HistorySnapshot `json:"snapshots"`
	Pointer   int               `json:"pointer"`
	UpdatedAt time.Time         `json:"updated_at"`
}
