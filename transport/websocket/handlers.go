package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

func (that *Server) handleCellClick(_ context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleCellClick")

	payload, err := decodePayload(msg)
	if err != nil {
		return conn.sendError(msg.Action, err.Error())
	}

	if payload.Cell == nil {
		log.Warn("cell is missing in payload")
		return conn.sendError(msg.Action, "cell is required")
	}

	if err = that.client.Click(*payload.Cell); err != nil {
		log.Error("failed to submit click", "cell", *payload.Cell, "error", err)
		return conn.sendError(msg.Action, err.Error())
	}

	return nil
}

func (that *Server) handleHistoryJump(_ context.Context, msg *Message, conn *connection) error {
	log := that.logger.With("method", "handleHistoryJump")

	payload, err := decodePayload(msg)
	if err != nil {
		return conn.sendError(msg.Action, err.Error())
	}

	if payload.Move == nil {
		log.Warn("move is missing in payload")
		return conn.sendError(msg.Action, "move is required")
	}

	if err = that.client.Jump(*payload.Move); err != nil {
		log.Error("failed to submit jump", "move", *payload.Move, "error", err)
		return conn.sendError(msg.Action, err.Error())
	}

	return nil
}

func (that *Server) handleNoticeDismiss(_ context.Context, msg *Message, conn *connection) error {
	if err := that.client.DismissNotice(); err != nil {
		return conn.sendError(msg.Action, err.Error())
	}

	return nil
}

func (that *Server) handleViewGet(_ context.Context, _ *Message, conn *connection) error {
	return conn.sendView(that.client.View())
}

func decodePayload(msg *Message) (RequestPayload, error) {
	var payload RequestPayload

	if len(msg.Payload) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return payload, nil
}
