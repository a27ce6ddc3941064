package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-dapp/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-dapp/internal/entity"
)

type SessionRepository interface {
	Save(ctx context.Context, record *entity.SessionRecord) error
	GetByPlayer(ctx context.Context, player string) (*entity.SessionRecord, error)
	DeleteByPlayer(ctx context.Context, player string) error
}

type dbSession struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionRepository - journal of sessions keyed by account. A ttl of zero keeps records forever.
func NewSessionRepository(client *redis.Client, ttl time.Duration) SessionRepository {
	return &dbSession{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(player string) string {
	// addresses are case-insensitive
	return "session:" + strings.ToLower(player)
}

func (that *dbSession) Save(ctx context.Context, record *entity.SessionRecord) error {
	if record.Player == "" {
		return fmt.Errorf("could not save session: %w", apperror.ErrSessionNotFound)
	}

	record.UpdatedAt = time.Now().UTC()

	sessionJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	err = that.client.Set(ctx, sessionKey(record.Player), sessionJSON, that.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *dbSession) GetByPlayer(ctx context.Context, player string) (*entity.SessionRecord, error) {
	response, err := that.client.Get(ctx, sessionKey(player)).Result()

	if errors.Is(err, redis.Nil) {
		return &entity.SessionRecord{}, apperror.ErrSessionNotFound
	}

	if err != nil {
		return &entity.SessionRecord{}, fmt.Errorf("failed to get session by player: %w", err)
	}

	var record entity.SessionRecord
	if err = json.Unmarshal([]byte(response), &record); err != nil {
		return &entity.SessionRecord{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &record, nil
}

func (that *dbSession) DeleteByPlayer(ctx context.Context, player string) error {
	deleted, err := that.client.Del(ctx, sessionKey(player)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session by player: %w", err)
	}

	if deleted == 0 {
		return apperror.ErrSessionNotFound
	}

	return nil
}
