package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/2beens/fitjourney/internal/users"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrSessionNotFound          = fmt.Errorf("session %w", apperrors.ErrNotFound)
	ErrExerciseNotInPlan        = fmt.Errorf("exercise not found in the specified plan: %w", apperrors.ErrBadRequest)
	ErrExerciseAlreadyCompleted = fmt.Errorf("exercise already completed for today: %w", apperrors.ErrBadRequest)
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// CommitParams carries everything needed to durably record one session.
type CommitParams struct {
	UserID     string
	PlanID     int
	ExerciseID int
	StartTime  time.Time
	EndTime    time.Time
	Sets       []SetRecord
	Notes      string
	Timezone   string
}

// CommitResult is what a successful commit produced, including the
// progression outcome and the state of the plan for the day.
type CommitResult struct {
	Session            *Session
	RemainingExercises int
	PlanCompleted      bool
	XPGained           int
	NewLevel           int
	NewExperience      int
	LeveledUp          bool
}

// Commit records the session, its sets, the exercise completion and the
// user progression in a single transaction. The plan exercise row is
// locked first, and its completion state is re-checked under that lock,
// so that two concurrent commits for the same exercise and day cannot
// both succeed.
func (r *Repo) Commit(ctx context.Context, params CommitParams) (_ *CommitResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessionsRepo.commit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int("plan.id", params.PlanID),
		attribute.Int("exercise.id", params.ExerciseID),
	)

	loc, locErr := time.LoadLocation(params.Timezone)
	if locErr != nil {
		loc = time.UTC
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				log.Errorf("commit session, rollback: %s", rollbackErr)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var (
		planExerciseID int
		completedAt    *time.Time
		difficultyXP   int
	)
	err = tx.QueryRow(ctx,
		`SELECT pe.id, pe.completed_at, e.difficulty_xp
			FROM plan_exercise pe
				JOIN plan p ON p.id = pe.plan_id
				JOIN exercise e ON e.id = pe.exercise_id
			WHERE pe.plan_id = $1 AND pe.exercise_id = $2 AND p.user_id = $3 AND p.is_active
			FOR UPDATE OF pe`,
		params.PlanID, params.ExerciseID, params.UserID,
	).Scan(&planExerciseID, &completedAt, &difficultyXP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExerciseNotInPlan
	}
	if err != nil {
		return nil, fmt.Errorf("lock plan exercise: %w", err)
	}

	if completedAt != nil && sameLocalDay(*completedAt, params.StartTime, loc) {
		return nil, ErrExerciseAlreadyCompleted
	}

	session := &Session{
		UserID:     params.UserID,
		PlanID:     params.PlanID,
		ExerciseID: params.ExerciseID,
		StartTime:  params.StartTime,
		EndTime:    params.EndTime,
		TotalSets:  len(params.Sets),
		Status:     StatusCompleted,
		Notes:      params.Notes,
		Sets:       params.Sets,
	}
	for _, set := range params.Sets {
		session.TotalReps += set.Reps
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO session
				(user_id, plan_id, exercise_id, start_time, end_time, total_sets, total_reps, status, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
		session.UserID, session.PlanID, session.ExerciseID,
		session.StartTime, session.EndTime,
		session.TotalSets, session.TotalReps,
		session.Status, session.Notes,
	).Scan(&session.ID)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	for _, set := range params.Sets {
		if _, err = tx.Exec(ctx,
			`INSERT INTO session_set (session_id, set_number, reps, duration)
				VALUES ($1, $2, $3, $4)`,
			session.ID, set.SetNumber, set.Reps, set.Duration,
		); err != nil {
			return nil, fmt.Errorf("insert session set %d: %w", set.SetNumber, err)
		}
	}

	if _, err = tx.Exec(ctx,
		`UPDATE plan_exercise SET completed_at = $1 WHERE id = $2`,
		params.StartTime, planExerciseID,
	); err != nil {
		return nil, fmt.Errorf("mark exercise completed: %w", err)
	}

	remaining, err := r.remainingExercises(ctx, tx, params.PlanID, params.StartTime, loc)
	if err != nil {
		return nil, err
	}

	var level, experience int
	err = tx.QueryRow(ctx,
		`SELECT level, experience FROM fj_user WHERE id = $1 FOR UPDATE`,
		params.UserID,
	).Scan(&level, &experience)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, users.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}

	newLevel, newExperience := users.ApplyXP(level, experience, difficultyXP)
	if _, err = tx.Exec(ctx,
		`UPDATE fj_user SET level = $1, experience = $2 WHERE id = $3`,
		newLevel, newExperience, params.UserID,
	); err != nil {
		return nil, fmt.Errorf("update user progression: %w", err)
	}

	return &CommitResult{
		Session:            session,
		RemainingExercises: remaining,
		PlanCompleted:      remaining == 0,
		XPGained:           difficultyXP,
		NewLevel:           newLevel,
		NewExperience:      newExperience,
		LeveledUp:          newLevel > level,
	}, nil
}

// remainingExercises counts plan exercises not yet completed for the
// occurrence day the session was performed on.
func (r *Repo) remainingExercises(
	ctx context.Context,
	tx pgx.Tx,
	planID int,
	instant time.Time,
	loc *time.Location,
) (int, error) {
	rows, err := tx.Query(ctx,
		`SELECT completed_at FROM plan_exercise WHERE plan_id = $1`,
		planID,
	)
	if err != nil {
		return 0, fmt.Errorf("query plan exercises: %w", err)
	}
	defer rows.Close()

	var remaining int
	for rows.Next() {
		var completedAt *time.Time
		if err := rows.Scan(&completedAt); err != nil {
			return 0, fmt.Errorf("scan plan exercise: %w", err)
		}
		if completedAt == nil || !sameLocalDay(*completedAt, instant, loc) {
			remaining++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate plan exercises: %w", err)
	}
	return remaining, nil
}

// Get returns one committed session with its sets, scoped to the owner.
func (r *Repo) Get(ctx context.Context, userID string, sessionID int) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessionsRepo.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	session := &Session{}
	err = r.db.QueryRow(ctx,
		`SELECT id, user_id, plan_id, exercise_id, start_time, end_time, total_sets, total_reps, status, notes
			FROM session
			WHERE id = $1 AND user_id = $2`,
		sessionID, userID,
	).Scan(
		&session.ID, &session.UserID, &session.PlanID, &session.ExerciseID,
		&session.StartTime, &session.EndTime,
		&session.TotalSets, &session.TotalReps,
		&session.Status, &session.Notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT set_number, reps, duration
			FROM session_set
			WHERE session_id = $1
			ORDER BY set_number`,
		session.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session sets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var set SetRecord
		if err := rows.Scan(&set.SetNumber, &set.Reps, &set.Duration); err != nil {
			return nil, fmt.Errorf("scan session set: %w", err)
		}
		session.Sets = append(session.Sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session sets: %w", err)
	}

	return session, nil
}

func sameLocalDay(a, b time.Time, loc *time.Location) bool {
	aLocal, bLocal := a.In(loc), b.In(loc)
	return aLocal.Year() == bLocal.Year() &&
		aLocal.Month() == bLocal.Month() &&
		aLocal.Day() == bLocal.Day()
}
