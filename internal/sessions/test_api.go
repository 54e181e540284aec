package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/2beens/fitjourney/internal/plans"
)

// testPlansRepo is an in-memory plansRepo.
type testPlansRepo struct {
	mutex sync.Mutex
	plans map[int]*plans.Plan
}

func newTestPlansRepo() *testPlansRepo {
	return &testPlansRepo{
		plans: make(map[int]*plans.Plan),
	}
}

func (r *testPlansRepo) addPlan(plan *plans.Plan) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.plans[plan.ID] = plan
}

func (r *testPlansRepo) Get(_ context.Context, userID string, planID int) (*plans.Plan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	plan, ok := r.plans[planID]
	if !ok || plan.UserID != userID {
		return nil, plans.ErrPlanNotFound
	}
	return plan, nil
}

// testCommitRepo is an in-memory commitRepo, replaying the same
// completion guard the real one enforces inside its transaction.
type testCommitRepo struct {
	mutex    sync.Mutex
	nextID   int
	sessions map[int]*Session

	plansRepo *testPlansRepo
	level     int
	xp        int

	commitErr error
}

func newTestCommitRepo(plansRepo *testPlansRepo, level, xp int) *testCommitRepo {
	return &testCommitRepo{
		nextID:    1,
		sessions:  make(map[int]*Session),
		plansRepo: plansRepo,
		level:     level,
		xp:        xp,
	}
}

func (r *testCommitRepo) Commit(_ context.Context, params CommitParams) (*CommitResult, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.commitErr != nil {
		return nil, r.commitErr
	}

	plan, ok := r.plansRepo.plans[params.PlanID]
	if !ok || plan.UserID != params.UserID || !plan.Active {
		return nil, ErrExerciseNotInPlan
	}

	var planExercise *plans.PlanExercise
	for i := range plan.Exercises {
		if plan.Exercises[i].ExerciseID == params.ExerciseID {
			planExercise = &plan.Exercises[i]
			break
		}
	}
	if planExercise == nil {
		return nil, ErrExerciseNotInPlan
	}
	if planExercise.CompletedOn(params.StartTime, params.Timezone) {
		return nil, ErrExerciseAlreadyCompleted
	}

	session := &Session{
		ID:         r.nextID,
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
	r.sessions[session.ID] = session
	r.nextID++

	completedAt := params.StartTime
	planExercise.CompletedAt = &completedAt

	var remaining int
	for i := range plan.Exercises {
		if !plan.Exercises[i].CompletedOn(params.StartTime, params.Timezone) {
			remaining++
		}
	}

	xpGained := 0
	if planExercise.Exercise != nil {
		xpGained = planExercise.Exercise.DifficultyXP
	}
	prevLevel := r.level
	newExperience := r.xp + xpGained
	newLevel := r.level
	if newExperience/(r.level*100) > 0 {
		newLevel++
	}
	r.level, r.xp = newLevel, newExperience

	return &CommitResult{
		Session:            session,
		RemainingExercises: remaining,
		PlanCompleted:      remaining == 0,
		XPGained:           xpGained,
		NewLevel:           newLevel,
		NewExperience:      newExperience,
		LeveledUp:          newLevel > prevLevel,
	}, nil
}

func (r *testCommitRepo) Get(_ context.Context, userID string, sessionID int) (*Session, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// testProgressCache is an in-memory progressCache with the same
// validation rules as the redis-backed one.
type testProgressCache struct {
	mutex    sync.Mutex
	progress map[string]*Progress
}

func newTestProgressCache() *testProgressCache {
	return &testProgressCache{
		progress: make(map[string]*Progress),
	}
}

func (c *testProgressCache) StartSet(
	_ context.Context,
	userID string,
	planID, exerciseID, setNumber int,
	now time.Time,
) (*Progress, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := ProgressKey(userID, planID, exerciseID)
	progress, ok := c.progress[key]
	if !ok {
		progress = &Progress{
			UserID:     userID,
			PlanID:     planID,
			ExerciseID: exerciseID,
			StartedAt:  now,
		}
		c.progress[key] = progress
	}

	if ongoing := progress.ongoingSet(); ongoing != nil {
		return nil, ErrSetInProgress
	}
	if existing := progress.findSet(setNumber); existing != nil {
		return nil, ErrSetAlreadyCompleted
	}
	progress.Sets = append(progress.Sets, SetAttempt{
		SetNumber: setNumber,
		StartedAt: now,
	})
	return progress, nil
}

func (c *testProgressCache) CompleteSet(
	_ context.Context,
	userID string,
	planID, exerciseID, setNumber, reps int,
	now time.Time,
) (*Progress, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	progress, ok := c.progress[ProgressKey(userID, planID, exerciseID)]
	if !ok {
		return nil, ErrSetNotStarted
	}
	attempt := progress.findSet(setNumber)
	if attempt == nil {
		return nil, ErrSetNotStarted
	}
	if attempt.Completed() {
		return nil, ErrSetAlreadyCompleted
	}
	duration := int(now.Sub(attempt.StartedAt).Seconds())
	attempt.EndedAt = &now
	attempt.Reps = &reps
	attempt.Duration = &duration
	return progress, nil
}

func (c *testProgressCache) Get(
	_ context.Context,
	userID string,
	planID, exerciseID int,
) (*Progress, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.progress[ProgressKey(userID, planID, exerciseID)], nil
}

func (c *testProgressCache) Delete(
	_ context.Context,
	userID string,
	planID, exerciseID int,
) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.progress, ProgressKey(userID, planID, exerciseID))
	return nil
}
