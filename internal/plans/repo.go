package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/exercises"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/2beens/fitjourney/internal/weekday"
	"github.com/2beens/fitjourney/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrPlanNotFound         = fmt.Errorf("plan %w", apperrors.ErrNotFound)
	ErrPlanExerciseNotFound = fmt.Errorf("plan exercise %w", apperrors.ErrNotFound)
	ErrNoRepeatDays         = fmt.Errorf("%w: plan needs at least one repeat day", apperrors.ErrBadRequest)
	ErrDuplicateOrder       = fmt.Errorf("%w: exercise order indices must be unique", apperrors.ErrBadRequest)
)

type ListParams struct {
	SearchTerm string
	IsActive   *bool
	SortOrder  string // asc | desc, defaults to desc by creation time
	Page       int
	Limit      int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Create(ctx context.Context, plan Plan) (_ *Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.create")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", plan.UserID))

	if len(plan.RepeatDays) == 0 {
		return nil, ErrNoRepeatDays
	}
	for _, d := range plan.RepeatDays {
		if !weekday.Valid(d) {
			return nil, fmt.Errorf("%w: unknown repeat day %q", apperrors.ErrBadRequest, d)
		}
	}
	seenOrders := make(map[int]bool)
	for _, pe := range plan.Exercises {
		if seenOrders[pe.Order] {
			return nil, ErrDuplicateOrder
		}
		seenOrders[pe.Order] = true
	}

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		INSERT INTO plan (user_id, repeat_days, label, notification_time, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING id
	`,
		plan.UserID, daysToStrings(plan.RepeatDays), plan.Label, plan.NotificationTime, plan.CreatedAt,
	).Scan(&plan.ID)
	if err != nil {
		return nil, err
	}
	plan.Active = true

	for i := range plan.Exercises {
		pe := &plan.Exercises[i]
		pe.PlanID = plan.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO plan_exercise (plan_id, exercise_id, sets, reps, exercise_order)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`,
			pe.PlanID, pe.ExerciseID, pe.Sets, pe.Reps, pe.Order,
		).Scan(&pe.ID)
		if err != nil {
			if pkg.IsUniqueViolationError(err) {
				return nil, fmt.Errorf("exercise %d already in plan: %w", pe.ExerciseID, apperrors.ErrConflict)
			}
			if pkg.IsForeignKeyViolationError(err) {
				return nil, fmt.Errorf("unknown exercise %d: %w", pe.ExerciseID, apperrors.ErrBadRequest)
			}
			return nil, err
		}
	}

	return &plan, nil
}

func (r *Repo) Get(ctx context.Context, userID string, planID int) (_ *Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("plan.id", planID))

	var plan Plan
	var repeatDays []string
	err = r.db.
		QueryRow(ctx, `
			SELECT id, user_id, repeat_days, label, notification_time, is_active, created_at
			FROM plan
			WHERE id = $1 AND user_id = $2
		`, planID, userID).
		Scan(&plan.ID, &plan.UserID, &repeatDays, &plan.Label, &plan.NotificationTime, &plan.Active, &plan.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	plan.RepeatDays = stringsToDays(repeatDays)

	plan.Exercises, err = r.planExercises(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("load plan exercises: %w", err)
	}

	return &plan, nil
}

// ListActive returns all active plans of a user, exercises included,
// newest plan first.
func (r *Repo) ListActive(ctx context.Context, userID string) (_ []Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.listactive")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, repeat_days, label, notification_time, is_active, created_at
		FROM plan
		WHERE user_id = $1 AND is_active IS TRUE
		ORDER BY created_at DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	plans, err := r.rows2plans(rows)
	if err != nil {
		return nil, err
	}

	for i := range plans {
		plans[i].Exercises, err = r.planExercises(ctx, plans[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load plan %d exercises: %w", plans[i].ID, err)
		}
	}

	return plans, nil
}

// List returns the requested page of a user's plans, together with the
// total count of plans matching the filter.
func (r *Repo) List(ctx context.Context, userID string, params ListParams) (_ []Plan, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("limit", params.Limit))

	if params.Page < 1 {
		return nil, -1, fmt.Errorf("%w: page must be greater than 0", apperrors.ErrBadRequest)
	}
	if params.Limit < 1 {
		return nil, -1, fmt.Errorf("%w: limit must be greater than 0", apperrors.ErrBadRequest)
	}

	sortOrder := "DESC"
	if params.SortOrder == "asc" {
		sortOrder = "ASC"
	}
	offset := (params.Page - 1) * params.Limit

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM plan p
			WHERE p.user_id = $1
			AND ($2::boolean IS NULL OR p.is_active = $2)
			AND ($3::text = '' OR p.label ILIKE '%' || $3 || '%' OR EXISTS (
				SELECT 1 FROM plan_exercise pe
				JOIN exercise e ON e.id = pe.exercise_id
				WHERE pe.plan_id = p.id AND e.name ILIKE '%' || $3 || '%'
			));
	`, userID, params.IsActive, params.SearchTerm).Scan(&total)
	if err != nil {
		return nil, -1, fmt.Errorf("count: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, repeat_days, label, notification_time, is_active, created_at
		FROM plan p
			WHERE p.user_id = $1
			AND ($2::boolean IS NULL OR p.is_active = $2)
			AND ($3::text = '' OR p.label ILIKE '%' || $3 || '%' OR EXISTS (
				SELECT 1 FROM plan_exercise pe
				JOIN exercise e ON e.id = pe.exercise_id
				WHERE pe.plan_id = p.id AND e.name ILIKE '%' || $3 || '%'
			))
		ORDER BY created_at `+sortOrder+`
		LIMIT $4
		OFFSET $5;
	`, userID, params.IsActive, params.SearchTerm, params.Limit, offset)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, -1, err
	}

	plans, err := r.rows2plans(rows)
	if err != nil {
		return nil, -1, err
	}

	for i := range plans {
		plans[i].Exercises, err = r.planExercises(ctx, plans[i].ID)
		if err != nil {
			return nil, -1, fmt.Errorf("load plan %d exercises: %w", plans[i].ID, err)
		}
	}

	return plans, total, nil
}

// Deactivate soft-deletes a plan.
func (r *Repo) Deactivate(ctx context.Context, userID string, planID int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.deactivate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("plan.id", planID))

	tag, err := r.db.Exec(ctx, `
		UPDATE plan SET is_active = FALSE
		WHERE id = $1 AND user_id = $2
	`, planID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (r *Repo) rows2plans(rows pgx.Rows) ([]Plan, error) {
	plans := make([]Plan, 0)
	for rows.Next() {
		var plan Plan
		var repeatDays []string
		if err := rows.Scan(
			&plan.ID, &plan.UserID, &repeatDays, &plan.Label,
			&plan.NotificationTime, &plan.Active, &plan.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		plan.RepeatDays = stringsToDays(repeatDays)
		plans = append(plans, plan)
	}
	return plans, nil
}

func (r *Repo) planExercises(ctx context.Context, planID int) ([]PlanExercise, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			pe.id, pe.plan_id, pe.exercise_id, pe.sets, pe.reps, pe.exercise_order, pe.completed_at,
			e.id, e.name, e.description, e.difficulty_xp
		FROM plan_exercise pe
		JOIN exercise e ON e.id = pe.exercise_id
		WHERE pe.plan_id = $1
		ORDER BY pe.exercise_order;
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	planExercises := make([]PlanExercise, 0)
	for rows.Next() {
		var pe PlanExercise
		var e exercises.Exercise
		if err := rows.Scan(
			&pe.ID, &pe.PlanID, &pe.ExerciseID, &pe.Sets, &pe.Reps, &pe.Order, &pe.CompletedAt,
			&e.ID, &e.Name, &e.Description, &e.DifficultyXP,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		pe.Exercise = &e
		planExercises = append(planExercises, pe)
	}

	return planExercises, nil
}

func daysToStrings(days []weekday.Day) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = string(d)
	}
	return out
}

func stringsToDays(days []string) []weekday.Day {
	out := make([]weekday.Day, len(days))
	for i, d := range days {
		out[i] = weekday.Day(d)
	}
	return out
}
