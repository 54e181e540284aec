package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/middleware"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/2beens/fitjourney/pkg"
)

const defaultTimezone = "UTC"

type sessionsService interface {
	RecordSession(ctx context.Context, userID, timezone string, params RecordSessionParams) (*SessionOutcome, error)
	StartSet(ctx context.Context, userID string, planID, exerciseID, setNumber int) (*Progress, error)
	CompleteSet(ctx context.Context, userID string, planID, exerciseID, setNumber, reps int) (*Progress, error)
	Progress(ctx context.Context, userID string, planID, exerciseID int) (*ProgressView, error)
	CompleteSession(ctx context.Context, userID, timezone string, planID, exerciseID int, notes string) (*SessionOutcome, error)
	GetSession(ctx context.Context, userID string, sessionID int) (*Session, error)
}

type Handler struct {
	service sessionsService
}

func NewHandler(service sessionsService) *Handler {
	return &Handler{
		service: service,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/sessions/record", handler.HandleRecord).Methods("POST", "OPTIONS").Name("record-session")
	router.HandleFunc("/sessions/sets/start", handler.HandleStartSet).Methods("POST", "OPTIONS").Name("start-set")
	router.HandleFunc("/sessions/sets/complete", handler.HandleCompleteSet).Methods("POST", "OPTIONS").Name("complete-set")
	router.HandleFunc("/sessions/{planId}/{exerciseId}/progress", handler.HandleProgress).Methods("GET", "OPTIONS").Name("session-progress")
	router.HandleFunc("/sessions/{planId}/{exerciseId}/complete", handler.HandleCompleteSession).Methods("POST", "OPTIONS").Name("complete-session")
	router.HandleFunc("/sessions/{id}", handler.HandleGet).Methods("GET", "OPTIONS").Name("get-session")
}

type RecordSessionRequest struct {
	PlanID     int         `json:"planId"`
	ExerciseID int         `json:"exerciseId"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    time.Time   `json:"endTime"`
	Notes      string      `json:"notes,omitempty"`
	Sets       []SetRecord `json:"sets"`
	Timezone   string      `json:"timezone,omitempty"`
}

func (handler *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.record")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req RecordSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("record session, unmarshal json params: %s", err)
		http.Error(w, "record session failed", http.StatusBadRequest)
		return
	}
	if len(req.Sets) == 0 {
		http.Error(w, "sets must not be empty", http.StatusBadRequest)
		return
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = defaultTimezone
	}

	outcome, err := handler.service.RecordSession(ctx, userID, timezone, RecordSessionParams{
		PlanID:     req.PlanID,
		ExerciseID: req.ExerciseID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Notes:      req.Notes,
		Sets:       req.Sets,
	})
	if err != nil {
		handler.writeError(w, userID, "record session", err)
		return
	}

	outcomeJson, err := json.Marshal(outcome)
	if err != nil {
		log.Errorf("record session, marshal outcome: %s", err)
		http.Error(w, "record session failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, outcomeJson, http.StatusCreated)
}

type SetRequest struct {
	PlanID     int `json:"planId"`
	ExerciseID int `json:"exerciseId"`
	SetNumber  int `json:"setNumber"`
	Reps       int `json:"reps,omitempty"`
}

func (handler *Handler) HandleStartSet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.startSet")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("start set, unmarshal json params: %s", err)
		http.Error(w, "start set failed", http.StatusBadRequest)
		return
	}

	progress, err := handler.service.StartSet(ctx, userID, req.PlanID, req.ExerciseID, req.SetNumber)
	if err != nil {
		handler.writeError(w, userID, "start set", err)
		return
	}

	progressJson, err := json.Marshal(progress)
	if err != nil {
		log.Errorf("start set, marshal progress: %s", err)
		http.Error(w, "start set failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, progressJson)
}

func (handler *Handler) HandleCompleteSet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.completeSet")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var req SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("complete set, unmarshal json params: %s", err)
		http.Error(w, "complete set failed", http.StatusBadRequest)
		return
	}

	progress, err := handler.service.CompleteSet(ctx, userID, req.PlanID, req.ExerciseID, req.SetNumber, req.Reps)
	if err != nil {
		handler.writeError(w, userID, "complete set", err)
		return
	}

	progressJson, err := json.Marshal(progress)
	if err != nil {
		log.Errorf("complete set, marshal progress: %s", err)
		http.Error(w, "complete set failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, progressJson)
}

func (handler *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.progress")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	planID, exerciseID, ok := planAndExerciseIDs(w, r)
	if !ok {
		return
	}

	view, err := handler.service.Progress(ctx, userID, planID, exerciseID)
	if err != nil {
		handler.writeError(w, userID, "session progress", err)
		return
	}

	viewJson, err := json.Marshal(view)
	if err != nil {
		log.Errorf("session progress, marshal view: %s", err)
		http.Error(w, "session progress failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, viewJson)
}

type CompleteSessionRequest struct {
	Notes    string `json:"notes,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

func (handler *Handler) HandleCompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.completeSession")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	planID, exerciseID, ok := planAndExerciseIDs(w, r)
	if !ok {
		return
	}

	// body is optional here
	var req CompleteSessionRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Tracef("complete session, unmarshal json params: %s", err)
		}
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = defaultTimezone
	}

	outcome, err := handler.service.CompleteSession(ctx, userID, timezone, planID, exerciseID, req.Notes)
	if err != nil {
		handler.writeError(w, userID, "complete session", err)
		return
	}

	outcomeJson, err := json.Marshal(outcome)
	if err != nil {
		log.Errorf("complete session, marshal outcome: %s", err)
		http.Error(w, "complete session failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, outcomeJson, http.StatusCreated)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	sessionID, err := strconv.Atoi(vars["id"])
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	session, err := handler.service.GetSession(ctx, userID, sessionID)
	if err != nil {
		handler.writeError(w, userID, "get session", err)
		return
	}

	sessionJson, err := json.Marshal(session)
	if err != nil {
		log.Errorf("get session, marshal: %s", err)
		http.Error(w, "get session failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, sessionJson)
}

func (handler *Handler) writeError(w http.ResponseWriter, userID, op string, err error) {
	switch {
	case apperrors.IsBadRequest(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case apperrors.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case apperrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Errorf("%s for user %s: %s", op, userID, err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func planAndExerciseIDs(w http.ResponseWriter, r *http.Request) (planID, exerciseID int, ok bool) {
	vars := mux.Vars(r)
	planID, err := strconv.Atoi(vars["planId"])
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return 0, 0, false
	}
	exerciseID, err = strconv.Atoi(vars["exerciseId"])
	if err != nil {
		http.Error(w, "invalid exercise id", http.StatusBadRequest)
		return 0, 0, false
	}
	return planID, exerciseID, true
}
