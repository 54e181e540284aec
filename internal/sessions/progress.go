package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	progressKeyPrefix = "fitjourney-session-progress||"
	progressTTL       = 24 * time.Hour

	// number of optimistic lock attempts before giving up
	casMaxRetries = 3
)

var (
	ErrSetInProgress       = fmt.Errorf("another set is already in progress: %w", apperrors.ErrConflict)
	ErrSetAlreadyCompleted = fmt.Errorf("set has already been completed: %w", apperrors.ErrBadRequest)
	ErrSetNotStarted       = fmt.Errorf("set has not been started: %w", apperrors.ErrBadRequest)
	ErrNoProgress          = fmt.Errorf("no session in progress: %w", apperrors.ErrBadRequest)
)

// SetAttempt is a single set within an in-progress session. A set with
// a nil EndedAt is considered ongoing. Reps and Duration get filled in
// on completion.
type SetAttempt struct {
	SetNumber int        `json:"setNumber"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Reps      *int       `json:"reps,omitempty"`
	Duration  *int       `json:"duration,omitempty"`
}

func (sa *SetAttempt) Completed() bool {
	return sa.EndedAt != nil
}

// Progress is the ephemeral, redis-backed record of a session being
// performed right now. It expires on its own and never reaches postgres
// directly; committing a session converts it to a Session.
type Progress struct {
	UserID     string       `json:"userId"`
	PlanID     int          `json:"planId"`
	ExerciseID int          `json:"exerciseId"`
	StartedAt  time.Time    `json:"startedAt"`
	Sets       []SetAttempt `json:"sets"`
}

func (p *Progress) ongoingSet() *SetAttempt {
	for i := range p.Sets {
		if !p.Sets[i].Completed() {
			return &p.Sets[i]
		}
	}
	return nil
}

func (p *Progress) completedSets() int {
	var count int
	for i := range p.Sets {
		if p.Sets[i].Completed() {
			count++
		}
	}
	return count
}

func (p *Progress) findSet(setNumber int) *SetAttempt {
	for i := range p.Sets {
		if p.Sets[i].SetNumber == setNumber {
			return &p.Sets[i]
		}
	}
	return nil
}

// ProgressCache stores in-progress sessions in redis. All mutations go
// through an optimistic WATCH transaction so that two racing writers for
// the same key cannot both win.
type ProgressCache struct {
	redisClient *redis.Client
}

func NewProgressCache(redisClient *redis.Client) *ProgressCache {
	return &ProgressCache{
		redisClient: redisClient,
	}
}

func ProgressKey(userID string, planID, exerciseID int) string {
	return fmt.Sprintf("%s%s||%d||%d", progressKeyPrefix, userID, planID, exerciseID)
}

// StartSet marks the given set as started. It fails with a conflict if
// another set is still ongoing, and with a bad request if the set was
// already completed. A fresh Progress record is created on first use.
func (pc *ProgressCache) StartSet(
	ctx context.Context,
	userID string,
	planID, exerciseID, setNumber int,
	now time.Time,
) (progress *Progress, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "progressCache.startSet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("set.number", setNumber))

	progress, err = pc.mutate(ctx, userID, planID, exerciseID, now, func(p *Progress) error {
		if ongoing := p.ongoingSet(); ongoing != nil {
			return fmt.Errorf("set %d: %w", ongoing.SetNumber, ErrSetInProgress)
		}
		if existing := p.findSet(setNumber); existing != nil {
			return fmt.Errorf("set %d: %w", setNumber, ErrSetAlreadyCompleted)
		}
		p.Sets = append(p.Sets, SetAttempt{
			SetNumber: setNumber,
			StartedAt: now,
		})
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		// someone else got there first
		return nil, fmt.Errorf("set %d: %w", setNumber, ErrSetInProgress)
	}
	return progress, err
}

// CompleteSet finishes the given set, recording reps and how long it
// took. The set must have been started and not completed before.
func (pc *ProgressCache) CompleteSet(
	ctx context.Context,
	userID string,
	planID, exerciseID, setNumber, reps int,
	now time.Time,
) (progress *Progress, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "progressCache.completeSet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("set.number", setNumber))

	progress, err = pc.mutate(ctx, userID, planID, exerciseID, now, func(p *Progress) error {
		attempt := p.findSet(setNumber)
		if attempt == nil {
			return fmt.Errorf("set %d: %w", setNumber, ErrSetNotStarted)
		}
		if attempt.Completed() {
			return fmt.Errorf("set %d: %w", setNumber, ErrSetAlreadyCompleted)
		}
		duration := int(now.Sub(attempt.StartedAt).Seconds())
		attempt.EndedAt = &now
		attempt.Reps = &reps
		attempt.Duration = &duration
		return nil
	})
	return progress, err
}

// mutate runs fn against the current Progress value under an optimistic
// redis transaction and persists the result, refreshing the TTL. The
// transaction is retried a few times on contention.
func (pc *ProgressCache) mutate(
	ctx context.Context,
	userID string,
	planID, exerciseID int,
	now time.Time,
	fn func(p *Progress) error,
) (*Progress, error) {
	key := ProgressKey(userID, planID, exerciseID)

	var progress *Progress
	txFn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			progress = &Progress{
				UserID:     userID,
				PlanID:     planID,
				ExerciseID: exerciseID,
				StartedAt:  now,
			}
		case err != nil:
			return fmt.Errorf("get progress: %w", err)
		default:
			progress = &Progress{}
			if err := json.Unmarshal([]byte(raw), progress); err != nil {
				return fmt.Errorf("unmarshal progress: %w", err)
			}
		}

		if err := fn(progress); err != nil {
			return err
		}

		data, err := json.Marshal(progress)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(data), progressTTL)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < casMaxRetries; i++ {
		err = pc.redisClient.Watch(ctx, txFn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// Get returns the current in-progress session, or nil if there is none.
// Redis being unreachable is treated the same as no progress, the
// caller only loses the ephemeral view.
func (pc *ProgressCache) Get(
	ctx context.Context,
	userID string,
	planID, exerciseID int,
) (*Progress, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "progressCache.get")
	defer span.End()

	key := ProgressKey(userID, planID, exerciseID)
	raw, err := pc.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		log.Errorf("progress cache get %s: %s", key, err)
		return nil, nil
	}

	progress := &Progress{}
	if err := json.Unmarshal([]byte(raw), progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	return progress, nil
}

// Delete drops the in-progress record, typically after it was committed.
func (pc *ProgressCache) Delete(
	ctx context.Context,
	userID string,
	planID, exerciseID int,
) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "progressCache.delete")
	defer span.End()

	key := ProgressKey(userID, planID, exerciseID)
	if err := pc.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete progress %s: %w", key, err)
	}
	return nil
}
