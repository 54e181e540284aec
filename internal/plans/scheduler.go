package plans

import (
	"context"
	"sort"
	"time"

	"github.com/2beens/fitjourney/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

type schedulerRepo interface {
	ListActive(ctx context.Context, userID string) ([]Plan, error)
}

// ActivePlan is a plan enriched with completion counters for the
// occurrence being looked at.
type ActivePlan struct {
	Plan
	TotalExercises     int     `json:"totalExercises"`
	CompletedExercises int     `json:"completedExercises"`
	ProgressPercent    float64 `json:"progress"`
	IsFullyCompleted   bool    `json:"isCompleted"`
}

// Scheduler resolves which of a user's recurring plans apply on a given
// day. It never reads ambient time: the instant and timezone always come
// from the caller.
type Scheduler struct {
	repo schedulerRepo
}

func NewScheduler(repo schedulerRepo) *Scheduler {
	return &Scheduler{
		repo: repo,
	}
}

// ResolveToday returns the active plans scheduled on the weekday of
// `now` in the user's timezone. An empty result is a normal day off,
// not an error.
func (s *Scheduler) ResolveToday(
	ctx context.Context,
	userID string,
	timezone string,
	now time.Time,
) (_ []ActivePlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "scheduler.plans.resolvetoday")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))
	span.SetAttributes(attribute.String("timezone", timezone))

	plans, err := s.repo.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	todayPlans := make([]ActivePlan, 0)
	for _, plan := range plans {
		if !plan.ScheduledOn(now, timezone) {
			continue
		}
		todayPlans = append(todayPlans, enrich(plan, timezone, now))
	}

	return todayPlans, nil
}

// ResolveUpcoming returns all active plans regardless of weekday,
// ordered by earliest notification time (plans without one last).
func (s *Scheduler) ResolveUpcoming(
	ctx context.Context,
	userID string,
	timezone string,
	now time.Time,
) (_ []ActivePlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "scheduler.plans.resolveupcoming")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	plans, err := s.repo.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	upcoming := make([]ActivePlan, 0, len(plans))
	for _, plan := range plans {
		upcoming = append(upcoming, enrich(plan, timezone, now))
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		ni, nj := upcoming[i].NotificationTime, upcoming[j].NotificationTime
		if ni == nil {
			return false
		}
		if nj == nil {
			return true
		}
		return ni.Before(*nj)
	})

	return upcoming, nil
}

func enrich(plan Plan, timezone string, now time.Time) ActivePlan {
	total := len(plan.Exercises)
	completed := 0
	for i := range plan.Exercises {
		if plan.Exercises[i].CompletedOn(now, timezone) {
			completed++
		}
	}

	progress := 0.0
	if total > 0 {
		progress = float64(completed) / float64(total) * 100
	}

	return ActivePlan{
		Plan:               plan,
		TotalExercises:     total,
		CompletedExercises: completed,
		ProgressPercent:    progress,
		IsFullyCompleted:   total > 0 && completed == total,
	}
}
