package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/plans"
	"github.com/2beens/fitjourney/internal/telemetry/metrics"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/2beens/fitjourney/internal/weekday"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type plansRepo interface {
	Get(ctx context.Context, userID string, planID int) (*plans.Plan, error)
}

type commitRepo interface {
	Commit(ctx context.Context, params CommitParams) (*CommitResult, error)
	Get(ctx context.Context, userID string, sessionID int) (*Session, error)
}

type progressCache interface {
	StartSet(ctx context.Context, userID string, planID, exerciseID, setNumber int, now time.Time) (*Progress, error)
	CompleteSet(ctx context.Context, userID string, planID, exerciseID, setNumber, reps int, now time.Time) (*Progress, error)
	Get(ctx context.Context, userID string, planID, exerciseID int) (*Progress, error)
	Delete(ctx context.Context, userID string, planID, exerciseID int) error
}

// Service validates and commits workout sessions. All paths into a
// durable session, whether the sets were tracked live through the
// progress cache or sent in one request, go through RecordSession.
type Service struct {
	repo           commitRepo
	plansRepo      plansRepo
	cache          progressCache
	metricsManager *metrics.Manager

	// NowFunc is swapped in tests
	NowFunc func() time.Time
}

func NewService(
	repo commitRepo,
	plansRepo plansRepo,
	cache progressCache,
	metricsManager *metrics.Manager,
) *Service {
	return &Service{
		repo:           repo,
		plansRepo:      plansRepo,
		cache:          cache,
		metricsManager: metricsManager,
		NowFunc:        time.Now,
	}
}

// RecordSessionParams is one complete session, with all its sets, to be
// validated and committed.
type RecordSessionParams struct {
	PlanID     int
	ExerciseID int
	StartTime  time.Time
	EndTime    time.Time
	Notes      string
	Sets       []SetRecord
}

// SessionOutcome is the result of a committed session: the stored
// session, the plan state for the day and the progression outcome.
type SessionOutcome struct {
	Session            *Session `json:"session"`
	RemainingExercises int      `json:"remainingExercises"`
	PlanCompleted      bool     `json:"isPlanCompleted"`
	XPGained           int      `json:"xpGained"`
	Level              int      `json:"level"`
	Experience         int      `json:"experience"`
	LeveledUp          bool     `json:"leveledUp"`
}

// RecordSession validates the session against the plan and commits it.
// Validation order: the exercise must belong to an active plan owned by
// the user, the plan must repeat on the weekday of the session start,
// the exercise must not be completed for that day yet, and the number
// of sets must match the prescription exactly. The completion check is
// repeated inside the commit transaction, under a row lock, so retried
// and concurrent requests cannot double-count.
func (s *Service) RecordSession(
	ctx context.Context,
	userID, timezone string,
	params RecordSessionParams,
) (_ *SessionOutcome, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessionsService.recordSession")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.Int("plan.id", params.PlanID),
		attribute.Int("exercise.id", params.ExerciseID),
	)

	planExercise, plan, err := s.planExercise(ctx, userID, params.PlanID, params.ExerciseID)
	if err != nil {
		return nil, err
	}

	if !plan.ScheduledOn(params.StartTime, timezone) {
		day := weekday.Resolve(params.StartTime, timezone)
		return nil, fmt.Errorf(
			"plan is not scheduled for %s: %w",
			strings.ToLower(string(day)), apperrors.ErrBadRequest,
		)
	}

	if planExercise.CompletedOn(params.StartTime, timezone) {
		return nil, ErrExerciseAlreadyCompleted
	}

	if len(params.Sets) != planExercise.Sets {
		return nil, fmt.Errorf(
			"number of sets must match the plan (expected: %d, got: %d): %w",
			planExercise.Sets, len(params.Sets), apperrors.ErrBadRequest,
		)
	}

	if !params.EndTime.After(params.StartTime) {
		return nil, fmt.Errorf("end time must be after start time: %w", apperrors.ErrBadRequest)
	}

	result, err := s.repo.Commit(ctx, CommitParams{
		UserID:     userID,
		PlanID:     params.PlanID,
		ExerciseID: params.ExerciseID,
		StartTime:  params.StartTime,
		EndTime:    params.EndTime,
		Sets:       params.Sets,
		Notes:      params.Notes,
		Timezone:   timezone,
	})
	if err != nil {
		return nil, err
	}

	s.metricsManager.CounterSessionsRecorded.Inc()
	if result.LeveledUp {
		s.metricsManager.CounterLevelUps.Inc()
	}

	return &SessionOutcome{
		Session:            result.Session,
		RemainingExercises: result.RemainingExercises,
		PlanCompleted:      result.PlanCompleted,
		XPGained:           result.XPGained,
		Level:              result.NewLevel,
		Experience:         result.NewExperience,
		LeveledUp:          result.LeveledUp,
	}, nil
}

// StartSet opens a new set in the progress cache after checking it
// against the plan prescription.
func (s *Service) StartSet(
	ctx context.Context,
	userID string,
	planID, exerciseID, setNumber int,
) (_ *Progress, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessionsService.startSet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	planExercise, _, err := s.planExercise(ctx, userID, planID, exerciseID)
	if err != nil {
		return nil, err
	}
	if setNumber < 1 || setNumber > planExercise.Sets {
		return nil, fmt.Errorf(
			"set number must be between 1 and %d: %w",
			planExercise.Sets, apperrors.ErrBadRequest,
		)
	}

	progress, err := s.cache.StartSet(ctx, userID, planID, exerciseID, setNumber, s.NowFunc())
	if err != nil {
		if apperrors.IsConflict(err) {
			s.metricsManager.CounterProgressConflicts.Inc()
		}
		return nil, err
	}

	s.metricsManager.CounterSetsStarted.Inc()
	return progress, nil
}

// CompleteSet closes a started set, recording the reps performed.
func (s *Service) CompleteSet(
	ctx context.Context,
	userID string,
	planID, exerciseID, setNumber, reps int,
) (_ *Progress, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessionsService.completeSet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if _, _, err := s.planExercise(ctx, userID, planID, exerciseID); err != nil {
		return nil, err
	}
	if reps < 0 {
		return nil, fmt.Errorf("reps must not be negative: %w", apperrors.ErrBadRequest)
	}

	progress, err := s.cache.CompleteSet(ctx, userID, planID, exerciseID, setNumber, reps, s.NowFunc())
	if err != nil {
		return nil, err
	}

	s.metricsManager.CounterSetsCompleted.Inc()
	return progress, nil
}

// ProgressView is the live view of an in-progress session, derived from
// the cache record and the plan prescription.
type ProgressView struct {
	Started            bool         `json:"started"`
	CurrentSet         int          `json:"currentSet"`
	TotalSets          int          `json:"totalSets"`
	CompletedSets      int          `json:"completedSets"`
	RemainingSets      int          `json:"remainingSets"`
	ProgressPercent    float64      `json:"progress"`
	ElapsedSeconds     int          `json:"elapsedSeconds"`
	AvgSetDurationSecs int          `json:"avgSetDuration"`
	Sets               []SetAttempt `json:"sets,omitempty"`
}

// Progress returns the live view of the in-progress session, or an
// empty (not started) view when there is nothing in the cache.
func (s *Service) Progress(
	ctx context.Context,
	userID string,
	planID, exerciseID int,
) (_ *ProgressView, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessionsService.progress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	planExercise, _, err := s.planExercise(ctx, userID, planID, exerciseID)
	if err != nil {
		return nil, err
	}

	progress, err := s.cache.Get(ctx, userID, planID, exerciseID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return &ProgressView{
			CurrentSet:    1,
			TotalSets:     planExercise.Sets,
			RemainingSets: planExercise.Sets,
		}, nil
	}

	completed := progress.completedSets()
	currentSet := completed + 1
	if currentSet > planExercise.Sets {
		currentSet = planExercise.Sets
	}

	view := &ProgressView{
		Started:        true,
		CurrentSet:     currentSet,
		TotalSets:      planExercise.Sets,
		CompletedSets:  completed,
		RemainingSets:  planExercise.Sets - completed,
		ElapsedSeconds: int(s.NowFunc().Sub(progress.StartedAt).Seconds()),
		Sets:           progress.Sets,
	}
	if planExercise.Sets > 0 {
		view.ProgressPercent = float64(completed) / float64(planExercise.Sets) * 100
	}
	if completed > 0 {
		var totalDuration int
		for _, set := range progress.Sets {
			if set.Completed() && set.Duration != nil {
				totalDuration += *set.Duration
			}
		}
		view.AvgSetDurationSecs = totalDuration / completed
	}

	return view, nil
}

// CompleteSession drains the progress cache into a durable session: the
// accumulated sets are converted to set records and committed through
// the same validation path as a directly recorded session. The cache
// entry is dropped only after the commit succeeds.
func (s *Service) CompleteSession(
	ctx context.Context,
	userID, timezone string,
	planID, exerciseID int,
	notes string,
) (_ *SessionOutcome, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sessionsService.completeSession")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	progress, err := s.cache.Get(ctx, userID, planID, exerciseID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, ErrNoProgress
	}
	if ongoing := progress.ongoingSet(); ongoing != nil {
		return nil, fmt.Errorf("set %d is still in progress: %w", ongoing.SetNumber, apperrors.ErrBadRequest)
	}

	endTime := s.NowFunc()
	sets := make([]SetRecord, 0, len(progress.Sets))
	for _, attempt := range progress.Sets {
		set := SetRecord{SetNumber: attempt.SetNumber}
		if attempt.Reps != nil {
			set.Reps = *attempt.Reps
		}
		if attempt.Duration != nil {
			set.Duration = *attempt.Duration
		}
		if attempt.EndedAt != nil && attempt.EndedAt.After(endTime) {
			endTime = *attempt.EndedAt
		}
		sets = append(sets, set)
	}

	outcome, err := s.RecordSession(ctx, userID, timezone, RecordSessionParams{
		PlanID:     planID,
		ExerciseID: exerciseID,
		StartTime:  progress.StartedAt,
		EndTime:    endTime,
		Notes:      notes,
		Sets:       sets,
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Delete(ctx, userID, planID, exerciseID); err != nil {
		// the durable record won, the cache entry will expire anyway
		log.Errorf("complete session, drop progress cache: %s", err)
	}

	return outcome, nil
}

// GetSession returns one committed session, scoped to the owner.
func (s *Service) GetSession(ctx context.Context, userID string, sessionID int) (*Session, error) {
	return s.repo.Get(ctx, userID, sessionID)
}

func (s *Service) planExercise(
	ctx context.Context,
	userID string,
	planID, exerciseID int,
) (*plans.PlanExercise, *plans.Plan, error) {
	plan, err := s.plansRepo.Get(ctx, userID, planID)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			return nil, nil, ErrExerciseNotInPlan
		}
		return nil, nil, err
	}
	if !plan.Active {
		return nil, nil, ErrExerciseNotInPlan
	}
	for i := range plan.Exercises {
		if plan.Exercises[i].ExerciseID == exerciseID {
			return &plan.Exercises[i], plan, nil
		}
	}
	return nil, nil, ErrExerciseNotInPlan
}
