package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/projection"
)

const (
	actionCellClick     = "cell:click"
	actionHistoryJump   = "history:jump"
	actionNoticeDismiss = "notice:dismiss"
	actionViewGet       = "view:get"

	actionView  = "view"
	actionError = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RequestPayload struct {
	Cell *int `json:"cell,omitempty"`
	Move *int `json:"move,omitempty"`
}

type ResponsePayload struct {
	View  *projection.View `json:"view,omitempty"`
	Error string           `json:"error,omitempty"`
}

// connection serializes writes, gorilla allows one concurrent writer.
type connection struct {
	ws *websocket.Conn

	mu        sync.Mutex
	closeOnce sync.Once
}

func (that *connection) send(action string, payload ResponsePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Message{Action: action, Payload: body})
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if err = that.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *connection) sendView(view projection.View) error {
	return that.send(actionView, ResponsePayload{View: &view})
}

func (that *connection) sendError(action, message string) error {
	return that.send(action, ResponsePayload{Error: message})
}

func (that *connection) close() {
	that.closeOnce.Do(func() {
		_ = that.ws.Close()
	})
}
