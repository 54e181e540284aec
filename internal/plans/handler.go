package plans

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/middleware"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/2beens/fitjourney/internal/users"
	"github.com/2beens/fitjourney/pkg"
)

const defaultTimezone = "UTC"

type plansRepo interface {
	Create(ctx context.Context, plan Plan) (*Plan, error)
	Get(ctx context.Context, userID string, planID int) (*Plan, error)
	List(ctx context.Context, userID string, params ListParams) (_ []Plan, total int, err error)
	ListActive(ctx context.Context, userID string) ([]Plan, error)
	Deactivate(ctx context.Context, userID string, planID int) error
}

type usersRepo interface {
	Get(ctx context.Context, id string) (*users.User, error)
}

type Handler struct {
	repo      plansRepo
	usersRepo usersRepo
	scheduler *Scheduler
}

func NewHandler(repo plansRepo, usersRepo usersRepo) *Handler {
	return &Handler{
		repo:      repo,
		usersRepo: usersRepo,
		scheduler: NewScheduler(repo),
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/plans", handler.HandleCreate).Methods("POST", "OPTIONS").Name("new-plan")
	router.HandleFunc("/plans", handler.HandleList).Methods("GET", "OPTIONS").Name("list-plans")
	router.HandleFunc("/plans/today", handler.HandleToday).Methods("GET", "OPTIONS").Name("today-plans")
	router.HandleFunc("/plans/upcoming", handler.HandleUpcoming).Methods("GET", "OPTIONS").Name("upcoming-plans")
	router.HandleFunc("/plans/{id}", handler.HandleGet).Methods("GET", "OPTIONS").Name("get-plan")
	router.HandleFunc("/plans/{id}", handler.HandleDeactivate).Methods("DELETE", "OPTIONS").Name("deactivate-plan")
}

type CreatePlanRequest struct {
	RepeatDays       []string   `json:"repeatDays"`
	Label            string     `json:"label"`
	NotificationTime *time.Time `json:"notificationTime"`
	Exercises        []struct {
		ExerciseID int `json:"exerciseId"`
		Sets       int `json:"sets"`
		Reps       int `json:"reps"`
		Order      int `json:"order"`
	} `json:"exercises"`
}

type ListPlansResponse struct {
	Plans []Plan             `json:"plans"`
	Meta  pkg.PaginationMeta `json:"meta"`
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.create")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("new plan, unmarshal json params: %s", err)
		http.Error(w, "add plan failed", http.StatusBadRequest)
		return
	}

	user, err := handler.usersRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("new plan, get user %s: %s", userID, err)
		http.Error(w, "add plan failed", http.StatusInternalServerError)
		return
	}
	if !user.JourneyStarted() {
		http.Error(w, "journey not started yet", http.StatusBadRequest)
		return
	}

	plan := Plan{
		UserID:           userID,
		RepeatDays:       stringsToDays(req.RepeatDays),
		Label:            req.Label,
		NotificationTime: req.NotificationTime,
	}
	for _, e := range req.Exercises {
		plan.Exercises = append(plan.Exercises, PlanExercise{
			ExerciseID: e.ExerciseID,
			Sets:       e.Sets,
			Reps:       e.Reps,
			Order:      e.Order,
		})
	}

	createdPlan, err := handler.repo.Create(ctx, plan)
	if err != nil {
		if apperrors.IsBadRequest(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Errorf("failed to add new plan for user %s: %s", userID, err)
		http.Error(w, "add plan failed", http.StatusInternalServerError)
		return
	}

	planJson, err := json.Marshal(createdPlan)
	if err != nil {
		log.Errorf("failed to marshal new plan: %s", err)
		http.Error(w, "add plan failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, planJson, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.list")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	params := ListParams{
		SearchTerm: r.URL.Query().Get("searchTerm"),
		SortOrder:  r.URL.Query().Get("sortOrder"),
		Page:       1,
		Limit:      10,
	}
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		params.Page = page
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		params.Limit = limit
	}
	if isActiveStr := r.URL.Query().Get("isActive"); isActiveStr != "" {
		isActive, err := strconv.ParseBool(isActiveStr)
		if err != nil {
			http.Error(w, "invalid isActive", http.StatusBadRequest)
			return
		}
		params.IsActive = &isActive
	}

	plans, total, err := handler.repo.List(ctx, userID, params)
	if err != nil {
		if apperrors.IsBadRequest(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Errorf("list plans for user %s: %s", userID, err)
		http.Error(w, "failed to list plans", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(ListPlansResponse{
		Plans: plans,
		Meta:  pkg.NewPaginationMeta(total, params.Page, params.Limit),
	})
	if err != nil {
		log.Errorf("marshal plans list: %s", err)
		http.Error(w, "failed to list plans", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandleToday(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.today")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	timezone := r.URL.Query().Get("timezone")
	if timezone == "" {
		timezone = defaultTimezone
	}

	todayPlans, err := handler.scheduler.ResolveToday(ctx, userID, timezone, time.Now())
	if err != nil {
		log.Errorf("resolve today plans for user %s: %s", userID, err)
		http.Error(w, "failed to get today plans", http.StatusInternalServerError)
		return
	}

	plansJson, err := json.Marshal(todayPlans)
	if err != nil {
		log.Errorf("marshal today plans: %s", err)
		http.Error(w, "failed to get today plans", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, plansJson)
}

func (handler *Handler) HandleUpcoming(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.upcoming")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	timezone := r.URL.Query().Get("timezone")
	if timezone == "" {
		timezone = defaultTimezone
	}

	upcomingPlans, err := handler.scheduler.ResolveUpcoming(ctx, userID, timezone, time.Now())
	if err != nil {
		log.Errorf("resolve upcoming plans for user %s: %s", userID, err)
		http.Error(w, "failed to get upcoming plans", http.StatusInternalServerError)
		return
	}

	plansJson, err := json.Marshal(upcomingPlans)
	if err != nil {
		log.Errorf("marshal upcoming plans: %s", err)
		http.Error(w, "failed to get upcoming plans", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, plansJson)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.get")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	planID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}

	plan, err := handler.repo.Get(ctx, userID, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("get plan %d for user %s: %s", planID, userID, err)
		http.Error(w, "failed to get plan", http.StatusInternalServerError)
		return
	}

	planJson, err := json.Marshal(plan)
	if err != nil {
		log.Errorf("marshal plan %d: %s", planID, err)
		http.Error(w, "failed to get plan", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, planJson)
}

func (handler *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.plans.deactivate")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	planID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Deactivate(ctx, userID, planID); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("deactivate plan %d for user %s: %s", planID, userID, err)
		http.Error(w, "failed to deactivate plan", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, `{"deactivated":true}`)
}
