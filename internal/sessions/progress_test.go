package sessions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitjourney/internal/apperrors"
)

func marshalProgress(t *testing.T, progress *Progress) string {
	t.Helper()
	data, err := json.Marshal(progress)
	require.NoError(t, err)
	return string(data)
}

func TestProgressKey(t *testing.T) {
	assert.Equal(
		t,
		"fitjourney-session-progress||user-1||2||3",
		ProgressKey("user-1", 2, 3),
	)
}

func TestProgressCache_StartSet_fresh(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	key := ProgressKey(testUserID, 1, 2)
	mock.ExpectWatch(key)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(key, `.*"setNumber":1.*`, progressTTL).SetVal("OK")
	mock.ExpectTxPipelineExec()

	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	progress, err := cache.StartSet(ctx, testUserID, 1, 2, 1, now)
	require.NoError(t, err)
	require.NotNil(t, progress)
	require.Len(t, progress.Sets, 1)
	assert.Equal(t, 1, progress.Sets[0].SetNumber)
	assert.Equal(t, now, progress.Sets[0].StartedAt)
	assert.False(t, progress.Sets[0].Completed())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_StartSet_ongoingSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	started := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	existing := &Progress{
		UserID:     testUserID,
		PlanID:     1,
		ExerciseID: 2,
		StartedAt:  started,
		Sets: []SetAttempt{
			{SetNumber: 1, StartedAt: started},
		},
	}

	key := ProgressKey(testUserID, 1, 2)
	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(marshalProgress(t, existing))

	_, err := cache.StartSet(ctx, testUserID, 1, 2, 2, started.Add(time.Minute))
	require.ErrorIs(t, err, ErrSetInProgress)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_StartSet_alreadyCompleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	started := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	ended := started.Add(45 * time.Second)
	reps, duration := 10, 45
	existing := &Progress{
		UserID:     testUserID,
		PlanID:     1,
		ExerciseID: 2,
		StartedAt:  started,
		Sets: []SetAttempt{
			{SetNumber: 1, StartedAt: started, EndedAt: &ended, Reps: &reps, Duration: &duration},
		},
	}

	key := ProgressKey(testUserID, 1, 2)
	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(marshalProgress(t, existing))

	_, err := cache.StartSet(ctx, testUserID, 1, 2, 1, ended.Add(time.Minute))
	require.ErrorIs(t, err, ErrSetAlreadyCompleted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_StartSet_lostRace(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	// a concurrent writer keeps touching the key, so every optimistic
	// transaction attempt aborts at EXEC
	key := ProgressKey(testUserID, 1, 2)
	for i := 0; i < casMaxRetries; i++ {
		mock.ExpectWatch(key)
		mock.ExpectGet(key).RedisNil()
		mock.ExpectTxPipeline()
		mock.Regexp().ExpectSet(key, `.*"setNumber":1.*`, progressTTL).SetVal("OK")
		mock.ExpectTxPipelineExec().SetErr(redis.TxFailedErr)
	}

	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	_, err := cache.StartSet(ctx, testUserID, 1, 2, 1, now)
	require.ErrorIs(t, err, ErrSetInProgress)
	require.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_CompleteSet_retriesLostRace(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	started := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	existing := &Progress{
		UserID:     testUserID,
		PlanID:     1,
		ExerciseID: 2,
		StartedAt:  started,
		Sets: []SetAttempt{
			{SetNumber: 1, StartedAt: started},
		},
	}

	// first attempt loses the optimistic lock, second one goes through
	key := ProgressKey(testUserID, 1, 2)
	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(marshalProgress(t, existing))
	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(key, `.*"reps":12.*`, progressTTL).SetVal("OK")
	mock.ExpectTxPipelineExec().SetErr(redis.TxFailedErr)

	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(marshalProgress(t, existing))
	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(key, `.*"reps":12.*`, progressTTL).SetVal("OK")
	mock.ExpectTxPipelineExec()

	progress, err := cache.CompleteSet(ctx, testUserID, 1, 2, 1, 12, started.Add(45*time.Second))
	require.NoError(t, err)
	require.Len(t, progress.Sets, 1)
	require.True(t, progress.Sets[0].Completed())
	assert.Equal(t, 12, *progress.Sets[0].Reps)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_CompleteSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	started := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	existing := &Progress{
		UserID:     testUserID,
		PlanID:     1,
		ExerciseID: 2,
		StartedAt:  started,
		Sets: []SetAttempt{
			{SetNumber: 1, StartedAt: started},
		},
	}

	key := ProgressKey(testUserID, 1, 2)
	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(marshalProgress(t, existing))
	mock.ExpectTxPipeline()
	mock.Regexp().ExpectSet(key, `.*"reps":12.*`, progressTTL).SetVal("OK")
	mock.ExpectTxPipelineExec()

	progress, err := cache.CompleteSet(ctx, testUserID, 1, 2, 1, 12, started.Add(45*time.Second))
	require.NoError(t, err)
	require.Len(t, progress.Sets, 1)
	require.True(t, progress.Sets[0].Completed())
	assert.Equal(t, 12, *progress.Sets[0].Reps)
	assert.Equal(t, 45, *progress.Sets[0].Duration)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_CompleteSet_notStarted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	key := ProgressKey(testUserID, 1, 2)
	mock.ExpectWatch(key)
	mock.ExpectGet(key).RedisNil()

	_, err := cache.CompleteSet(ctx, testUserID, 1, 2, 1, 12, time.Now())
	require.ErrorIs(t, err, ErrSetNotStarted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	key := ProgressKey(testUserID, 1, 2)

	// nothing cached
	mock.ExpectGet(key).RedisNil()
	progress, err := cache.Get(ctx, testUserID, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, progress)

	started := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	existing := &Progress{
		UserID:     testUserID,
		PlanID:     1,
		ExerciseID: 2,
		StartedAt:  started,
		Sets: []SetAttempt{
			{SetNumber: 1, StartedAt: started},
		},
	}
	mock.ExpectGet(key).SetVal(marshalProgress(t, existing))

	progress, err = cache.Get(ctx, testUserID, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, testUserID, progress.UserID)
	require.Len(t, progress.Sets, 1)
	assert.True(t, progress.Sets[0].StartedAt.Equal(started))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressCache_Get_redisDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	mock.ExpectGet(ProgressKey(testUserID, 1, 2)).SetErr(assert.AnError)

	// a broken cache degrades to "no progress"
	progress, err := cache.Get(ctx, testUserID, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, progress)
}

func TestProgressCache_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewProgressCache(db)
	ctx := context.Background()

	mock.ExpectDel(ProgressKey(testUserID, 1, 2)).SetVal(1)

	require.NoError(t, cache.Delete(ctx, testUserID, 1, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}
