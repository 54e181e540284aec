package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrUserNotFound          = fmt.Errorf("user %w", apperrors.ErrNotFound)
	ErrJourneyAlreadyStarted = fmt.Errorf("%w: journey already started", apperrors.ErrBadRequest)
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Get(ctx context.Context, id string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", id))

	var u User
	err = r.db.
		QueryRow(ctx, `
			SELECT id, level, experience, journey_started_at, active, created_at
			FROM fj_user
			WHERE id = $1
		`, id).
		Scan(&u.ID, &u.Level, &u.Experience, &u.JourneyStartedAt, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// StartJourney sets the journey start date once. A second start is a
// client error, not an idempotent no-op.
func (r *Repo) StartJourney(ctx context.Context, id string, startedAt time.Time) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.startjourney")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", id))

	tag, err := r.db.Exec(ctx, `
		UPDATE fj_user
		SET journey_started_at = $2, active = TRUE
		WHERE id = $1 AND journey_started_at IS NULL
	`, id, startedAt)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		// either no such user, or the journey was started before
		user, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if user.JourneyStarted() {
			return ErrJourneyAlreadyStarted
		}
		return fmt.Errorf("start journey for user %s: no row updated", id)
	}

	return nil
}

// ApplyProgression persists a level/experience pair computed by ApplyXP.
// The commit engine calls this through its own transaction instead; this
// variant exists for out-of-band corrections.
func (r *Repo) ApplyProgression(ctx context.Context, id string, level, experience int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.applyprogression")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", id))
	span.SetAttributes(attribute.Int("level", level))

	tag, err := r.db.Exec(ctx, `
		UPDATE fj_user
		SET level = $2, experience = $3
		WHERE id = $1
	`, id, level, experience)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
