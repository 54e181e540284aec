package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitjourney/internal/middleware"
	"github.com/2beens/fitjourney/internal/telemetry/tracing"
	"github.com/2beens/fitjourney/pkg"
)

type usersRepo interface {
	Get(ctx context.Context, id string) (*User, error)
	StartJourney(ctx context.Context, id string, startedAt time.Time) error
}

type Handler struct {
	repo usersRepo
}

func NewHandler(repo usersRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/users/me", handler.HandleGetMe).Methods("GET", "OPTIONS").Name("get-me")
	router.HandleFunc("/users/journey/start", handler.HandleStartJourney).Methods("POST", "OPTIONS").Name("start-journey")
}

type StartJourneyResponse struct {
	Message   string    `json:"message"`
	StartDate time.Time `json:"startDate"`
}

func (handler *Handler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.me")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	user, err := handler.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		log.Errorf("get user %s: %s", userID, err)
		http.Error(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	userJson, err := json.Marshal(user)
	if err != nil {
		log.Errorf("marshal user %s: %s", userID, err)
		http.Error(w, "failed to get user", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, userJson)
}

func (handler *Handler) HandleStartJourney(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.users.startjourney")
	defer span.End()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	startedAt := time.Now()
	if err := handler.repo.StartJourney(ctx, userID, startedAt); err != nil {
		switch {
		case errors.Is(err, ErrJourneyAlreadyStarted):
			http.Error(w, "journey already started", http.StatusBadRequest)
		case errors.Is(err, ErrUserNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		default:
			log.Errorf("start journey for user %s: %s", userID, err)
			http.Error(w, "failed to start journey", http.StatusInternalServerError)
		}
		return
	}

	respJson, err := json.Marshal(StartJourneyResponse{
		Message:   "Journey started successfully",
		StartDate: startedAt,
	})
	if err != nil {
		log.Errorf("marshal start journey response: %s", err)
		http.Error(w, "failed to start journey", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
