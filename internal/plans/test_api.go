package plans

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2beens/fitjourney/internal/users"
)

// testRepo is an in-memory plansRepo for handler tests.
type testRepo struct {
	mutex  sync.Mutex
	nextID int
	plans  map[int]*Plan
}

func newTestRepo() *testRepo {
	return &testRepo{
		nextID: 1,
		plans:  make(map[int]*Plan),
	}
}

func (r *testRepo) addPlan(plan *Plan) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if plan.ID == 0 {
		plan.ID = r.nextID
	}
	if plan.ID >= r.nextID {
		r.nextID = plan.ID + 1
	}
	r.plans[plan.ID] = plan
}

func (r *testRepo) Create(_ context.Context, plan Plan) (*Plan, error) {
	if len(plan.RepeatDays) == 0 {
		return nil, ErrNoRepeatDays
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	plan.ID = r.nextID
	plan.Active = true
	plan.CreatedAt = time.Now()
	r.nextID++
	for i := range plan.Exercises {
		plan.Exercises[i].ID = plan.ID*100 + i
		plan.Exercises[i].PlanID = plan.ID
	}
	r.plans[plan.ID] = &plan
	return &plan, nil
}

func (r *testRepo) Get(_ context.Context, userID string, planID int) (*Plan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	plan, ok := r.plans[planID]
	if !ok || plan.UserID != userID {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func (r *testRepo) List(_ context.Context, userID string, params ListParams) ([]Plan, int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var matched []Plan
	for _, plan := range r.plans {
		if plan.UserID != userID {
			continue
		}
		if params.IsActive != nil && plan.Active != *params.IsActive {
			continue
		}
		if params.SearchTerm != "" &&
			!strings.Contains(strings.ToLower(plan.Label), strings.ToLower(params.SearchTerm)) {
			continue
		}
		matched = append(matched, *plan)
	}

	sort.Slice(matched, func(i, j int) bool {
		if params.SortOrder == "asc" {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (params.Page - 1) * params.Limit
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *testRepo) ListActive(_ context.Context, userID string) ([]Plan, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var result []Plan
	for _, plan := range r.plans {
		if plan.UserID == userID && plan.Active {
			result = append(result, *plan)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *testRepo) Deactivate(_ context.Context, userID string, planID int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	plan, ok := r.plans[planID]
	if !ok || plan.UserID != userID {
		return ErrPlanNotFound
	}
	plan.Active = false
	return nil
}

// testUsersRepo is an in-memory users repo for handler tests.
type testUsersRepo struct {
	users map[string]*users.User
}

func (r *testUsersRepo) Get(_ context.Context, id string) (*users.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return user, nil
}
