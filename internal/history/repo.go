package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/sessions"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Entry is one committed session as it appears in the history listing,
// with the exercise name joined in.
type Entry struct {
	sessions.Session
	ExerciseName string `json:"exerciseName"`
}

// Totals aggregates the whole filtered set, not just the current page.
// Durations are in seconds.
type Totals struct {
	Completed       int `json:"completed"`
	Uncompleted     int `json:"uncompleted"`
	InProgress      int `json:"inProgress"`
	TotalDuration   int `json:"totalDuration"`
	AverageDuration int `json:"averageDuration"`
}

// ExerciseStats summarizes all completed sessions of one exercise.
type ExerciseStats struct {
	ExerciseID      int        `json:"exerciseId"`
	TotalSessions   int        `json:"totalSessions"`
	TotalSets       int        `json:"totalSets"`
	TotalReps       int        `json:"totalReps"`
	TotalDuration   int        `json:"totalDuration"`
	AverageDuration int        `json:"averageDuration"`
	AverageReps     int        `json:"averageReps"`
	LastPerformed   *time.Time `json:"lastPerformed,omitempty"`
}

type ListParams struct {
	From       *time.Time
	To         *time.Time
	Status     string
	ExerciseID int
	SearchTerm string
	Page       int
	Limit      int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// List returns one page of the session history, newest first, together
// with the size of the whole filtered set.
func (r *Repo) List(ctx context.Context, userID string, params ListParams) (_ []Entry, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "historyRepo.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int("page", params.Page),
		attribute.Int("limit", params.Limit),
	)

	if params.Page < 1 {
		return nil, -1, fmt.Errorf("%w: page must be greater than 0", apperrors.ErrBadRequest)
	}
	if params.Limit < 1 || params.Limit > MaxLimit {
		return nil, -1, fmt.Errorf("%w: limit must be between 1 and %d", apperrors.ErrBadRequest, MaxLimit)
	}

	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*)
			FROM session s
				JOIN exercise e ON e.id = s.exercise_id
			WHERE s.user_id = $1
				AND ($2::timestamptz IS NULL OR s.start_time >= $2)
				AND ($3::timestamptz IS NULL OR s.start_time <= $3)
				AND ($4::text = '' OR s.status = $4)
				AND ($5::int = 0 OR s.exercise_id = $5)
				AND ($6::text = '' OR e.name ILIKE '%'||$6||'%' OR s.notes ILIKE '%'||$6||'%')`,
		userID, params.From, params.To, params.Status, params.ExerciseID, params.SearchTerm,
	).Scan(&total)
	if err != nil {
		return nil, -1, fmt.Errorf("count sessions: %w", err)
	}

	offset := (params.Page - 1) * params.Limit
	rows, err := r.db.Query(ctx,
		`SELECT
				s.id, s.user_id, s.plan_id, s.exercise_id, s.start_time, s.end_time,
				s.total_sets, s.total_reps, s.status, s.notes, e.name
			FROM session s
				JOIN exercise e ON e.id = s.exercise_id
			WHERE s.user_id = $1
				AND ($2::timestamptz IS NULL OR s.start_time >= $2)
				AND ($3::timestamptz IS NULL OR s.start_time <= $3)
				AND ($4::text = '' OR s.status = $4)
				AND ($5::int = 0 OR s.exercise_id = $5)
				AND ($6::text = '' OR e.name ILIKE '%'||$6||'%' OR s.notes ILIKE '%'||$6||'%')
			ORDER BY s.start_time DESC
			LIMIT $7
			OFFSET $8`,
		userID, params.From, params.To, params.Status, params.ExerciseID, params.SearchTerm,
		params.Limit, offset,
	)
	if err != nil {
		return nil, -1, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	entries, err := rows2entries(rows)
	if err != nil {
		return nil, -1, err
	}
	return entries, total, nil
}

// Totals aggregates status counts and durations over the same filtered
// set List paginates over.
func (r *Repo) Totals(ctx context.Context, userID string, params ListParams) (_ *Totals, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "historyRepo.totals")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	totals := &Totals{}
	var avgDuration float64
	err = r.db.QueryRow(ctx,
		`SELECT
				COUNT(*) FILTER (WHERE s.status = 'completed'),
				COUNT(*) FILTER (WHERE s.status = 'uncompleted'),
				COUNT(*) FILTER (WHERE s.status = 'in_progress'),
				COALESCE(SUM(EXTRACT(EPOCH FROM (s.end_time - s.start_time))), 0)::int,
				COALESCE(AVG(EXTRACT(EPOCH FROM (s.end_time - s.start_time))), 0)
			FROM session s
				JOIN exercise e ON e.id = s.exercise_id
			WHERE s.user_id = $1
				AND ($2::timestamptz IS NULL OR s.start_time >= $2)
				AND ($3::timestamptz IS NULL OR s.start_time <= $3)
				AND ($4::text = '' OR s.status = $4)
				AND ($5::int = 0 OR s.exercise_id = $5)
				AND ($6::text = '' OR e.name ILIKE '%'||$6||'%' OR s.notes ILIKE '%'||$6||'%')`,
		userID, params.From, params.To, params.Status, params.ExerciseID, params.SearchTerm,
	).Scan(
		&totals.Completed, &totals.Uncompleted, &totals.InProgress,
		&totals.TotalDuration, &avgDuration,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate sessions: %w", err)
	}

	totals.AverageDuration = int(math.Round(avgDuration))
	return totals, nil
}

// Stats summarizes all completed sessions of one exercise for the user.
// An exercise never performed yields all zeroes.
func (r *Repo) Stats(ctx context.Context, userID string, exerciseID int) (_ *ExerciseStats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "historyRepo.stats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	stats := &ExerciseStats{ExerciseID: exerciseID}
	err = r.db.QueryRow(ctx,
		`SELECT
				COUNT(*),
				COALESCE(SUM(s.total_sets), 0),
				COALESCE(SUM(s.total_reps), 0),
				COALESCE(SUM(EXTRACT(EPOCH FROM (s.end_time - s.start_time))), 0)::int,
				MAX(s.start_time)
			FROM session s
			WHERE s.user_id = $1 AND s.exercise_id = $2 AND s.status = 'completed'`,
		userID, exerciseID,
	).Scan(&stats.TotalSessions, &stats.TotalSets, &stats.TotalReps, &stats.TotalDuration, &stats.LastPerformed)
	if err != nil {
		return nil, fmt.Errorf("aggregate exercise sessions: %w", err)
	}

	if stats.TotalSessions > 0 {
		stats.AverageDuration = int(math.Round(float64(stats.TotalDuration) / float64(stats.TotalSessions)))
		stats.AverageReps = int(math.Round(float64(stats.TotalReps) / float64(stats.TotalSessions)))
	}

	return stats, nil
}

// StatsPerExercise summarizes completed sessions for every exercise the
// user has ever performed, most recently performed first. A user with no
// completed sessions gets an empty slice.
func (r *Repo) StatsPerExercise(ctx context.Context, userID string) (_ []ExerciseStats, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "historyRepo.statsPerExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx,
		`SELECT
				s.exercise_id,
				COUNT(*),
				COALESCE(SUM(s.total_sets), 0),
				COALESCE(SUM(s.total_reps), 0),
				COALESCE(SUM(EXTRACT(EPOCH FROM (s.end_time - s.start_time))), 0)::int,
				MAX(s.start_time)
			FROM session s
			WHERE s.user_id = $1 AND s.status = 'completed'
			GROUP BY s.exercise_id
			ORDER BY MAX(s.start_time) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query exercise stats: %w", err)
	}
	defer rows.Close()

	all := []ExerciseStats{}
	for rows.Next() {
		var stats ExerciseStats
		if err := rows.Scan(
			&stats.ExerciseID, &stats.TotalSessions, &stats.TotalSets,
			&stats.TotalReps, &stats.TotalDuration, &stats.LastPerformed,
		); err != nil {
			return nil, fmt.Errorf("scan exercise stats: %w", err)
		}
		if stats.TotalSessions > 0 {
			stats.AverageDuration = int(math.Round(float64(stats.TotalDuration) / float64(stats.TotalSessions)))
			stats.AverageReps = int(math.Round(float64(stats.TotalReps) / float64(stats.TotalSessions)))
		}
		all = append(all, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercise stats: %w", err)
	}
	return all, nil
}

func rows2entries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.PlanID, &entry.ExerciseID,
			&entry.StartTime, &entry.EndTime,
			&entry.TotalSets, &entry.TotalReps,
			&entry.Status, &entry.Notes,
			&entry.ExerciseName,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return entries, nil
}
