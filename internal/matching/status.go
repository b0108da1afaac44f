package matching

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// StatusStore tracks the pollable per-user run status. Begin must be atomic:
// concurrent triggers for one user see exactly one success, all others get
// errs.ErrAlreadyRunning.
type StatusStore interface {
	// Begin transitions the user to running (progress 0) if and only if no
	// run is currently in flight.
	Begin(ctx context.Context, userID string) error

	// Set overwrites the status snapshot. A terminal state (complete, error)
	// releases the single-flight lock.
	Set(ctx context.Context, userID string, st model.RunStatus) error

	// Get returns the latest snapshot; users with no recorded run are idle.
	Get(ctx context.Context, userID string) (model.RunStatus, error)
}

const (
	statusKeyPrefix = "matching:status:"
	lockKeyPrefix   = "matching:lock:"

	// lockTTL bounds how long a crashed run can block its user.
	lockTTL = 30 * time.Minute
	// statusTTL keeps the last snapshot around long enough for polling
	// clients, then lets it expire back to idle.
	statusTTL = 24 * time.Hour
)

// RedisStatusStore keeps run status in Redis so it survives process restarts
// and is shared across service instances. Single-flight is a SET NX lock.
type RedisStatusStore struct {
	rdb *redis.Client
}

func NewRedisStatusStore(rdb *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{rdb: rdb}
}

func (s *RedisStatusStore) Begin(ctx context.Context, userID string) error {
	ok, err := s.rdb.SetNX(ctx, lockKeyPrefix+userID, "1", lockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return errs.ErrAlreadyRunning
	}

	err = s.write(ctx, userID, model.RunStatus{
		Status:   model.RunRunning,
		Progress: 0,
		Message:  "starting",
	})
	if err != nil {
		// No run starts when Begin errors; holding the lock until the TTL
		// would block the user for nothing.
		s.rdb.Del(ctx, lockKeyPrefix+userID)
		return err
	}
	return nil
}

func (s *RedisStatusStore) Set(ctx context.Context, userID string, st model.RunStatus) error {
	if err := s.write(ctx, userID, st); err != nil {
		return err
	}
	if st.Status != model.RunRunning {
		if err := s.rdb.Del(ctx, lockKeyPrefix+userID).Err(); err != nil {
			return fmt.Errorf("release run lock: %w", err)
		}
	}
	return nil
}

func (s *RedisStatusStore) Get(ctx context.Context, userID string) (model.RunStatus, error) {
	vals, err := s.rdb.HGetAll(ctx, statusKeyPrefix+userID).Result()
	if err != nil {
		return model.RunStatus{}, fmt.Errorf("read run status: %w", err)
	}
	if len(vals) == 0 {
		return model.RunStatus{Status: model.RunIdle}, nil
	}

	progress, _ := strconv.Atoi(vals["progress"])
	return model.RunStatus{
		Status:   model.RunState(vals["status"]),
		Progress: progress,
		Message:  vals["message"],
	}, nil
}

func (s *RedisStatusStore) write(ctx context.Context, userID string, st model.RunStatus) error {
	key := statusKeyPrefix + userID
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(st.Status),
		"progress", strconv.Itoa(st.Progress),
		"message", st.Message,
	)
	pipe.Expire(ctx, key, statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write run status: %w", err)
	}
	return nil
}
