package history

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitjourney/internal/middleware"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/2beens/fitjourney/pkg"
)

type historyRepo interface {
	List(ctx context.Context, userID string, params ListParams) ([]Entry, int, error)
	Totals(ctx context.Context, userID string, params ListParams) (*Totals, error)
	Stats(ctx context.Context, userID string, exerciseID int) (*ExerciseStats, error)
	StatsPerExercise(ctx context.Context, userID string) ([]ExerciseStats, error)
}

type Handler struct {
	repo historyRepo
}

func NewHandler(repo historyRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/history", handler.HandleList).Methods("GET", "OPTIONS").Name("list-history")
	router.HandleFunc("/history/stats", handler.HandleStatsPerExercise).Methods("GET", "OPTIONS").Name("exercise-stats-all")
	router.HandleFunc("/history/stats/{exerciseId}", handler.HandleStats).Methods("GET", "OPTIONS").Name("exercise-stats")
}

type ListResponse struct {
	Sessions []Entry            `json:"sessions"`
	Totals   *Totals            `json:"totals"`
	Meta     pkg.PaginationMeta `json:"meta"`
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.history.list")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	params, err := listParamsFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, total, err := handler.repo.List(ctx, userID, params)
	if err != nil {
		log.Errorf("list history for user %s: %s", userID, err)
		http.Error(w, "list history failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	totals, err := handler.repo.Totals(ctx, userID, params)
	if err != nil {
		log.Errorf("history totals for user %s: %s", userID, err)
		http.Error(w, "list history failed", http.StatusInternalServerError)
		return
	}

	resp := ListResponse{
		Sessions: entries,
		Totals:   totals,
		Meta:     pkg.NewPaginationMeta(total, params.Page, params.Limit),
	}
	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal history response: %s", err)
		http.Error(w, "list history failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.history.stats")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	exerciseID, err := strconv.Atoi(vars["exerciseId"])
	if err != nil {
		http.Error(w, "invalid exercise id", http.StatusBadRequest)
		return
	}

	stats, err := handler.repo.Stats(ctx, userID, exerciseID)
	if err != nil {
		log.Errorf("exercise stats for user %s: %s", userID, err)
		http.Error(w, "exercise stats failed", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(stats)
	if err != nil {
		log.Errorf("marshal exercise stats: %s", err)
		http.Error(w, "exercise stats failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statsJson)
}

// HandleStatsPerExercise returns the stats of every exercise the user has
// performed, without singling one out.
func (handler *Handler) HandleStatsPerExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.history.statsPerExercise")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	allStats, err := handler.repo.StatsPerExercise(ctx, userID)
	if err != nil {
		log.Errorf("exercise stats for user %s: %s", userID, err)
		http.Error(w, "exercise stats failed", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(allStats)
	if err != nil {
		log.Errorf("marshal exercise stats: %s", err)
		http.Error(w, "exercise stats failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statsJson)
}

func listParamsFromQuery(r *http.Request) (ListParams, error) {
	params := ListParams{
		Page:       1,
		Limit:      DefaultLimit,
		Status:     r.URL.Query().Get("status"),
		SearchTerm: r.URL.Query().Get("search"),
	}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil || page < 1 {
			return params, errInvalidParam("page")
		}
		params.Page = page
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxLimit {
			return params, errInvalidParam("limit")
		}
		params.Limit = limit
	}
	if exerciseIDStr := r.URL.Query().Get("exerciseId"); exerciseIDStr != "" {
		exerciseID, err := strconv.Atoi(exerciseIDStr)
		if err != nil {
			return params, errInvalidParam("exerciseId")
		}
		params.ExerciseID = exerciseID
	}
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return params, errInvalidParam("from")
		}
		params.From = &from
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return params, errInvalidParam("to")
		}
		params.To = &to
	}

	return params, nil
}

type invalidParamError string

func errInvalidParam(name string) error {
	return invalidParamError(name)
}

func (e invalidParamError) Error() string {
	return "invalid parameter: " + string(e)
}
