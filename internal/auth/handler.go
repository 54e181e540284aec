package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitjourney/internal/middleware"
	"github.com/2beens/fitjourney/internal/telemetry/metrics"
	"github.com/2beens/fitjourney/internal/users"
	"github.com/2beens/fitjourney/pkg"
)

type authService interface {
	Login(ctx context.Context, userID string) (string, error)
	Logout(ctx context.Context, token string) error
}

type usersRepo interface {
	Get(ctx context.Context, id string) (*users.User, error)
}

type Handler struct {
	service   authService
	usersRepo usersRepo
	appSecret string
}

func NewHandler(service authService, usersRepo usersRepo, appSecret string) *Handler {
	return &Handler{
		service:   service,
		usersRepo: usersRepo,
		appSecret: appSecret,
	}
}

func (handler *Handler) SetupRoutes(
	router *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	loginAllowedPerMin int,
	metricsManager *metrics.Manager,
) {
	loginRoute := router.NewRoute().Subrouter()
	loginRoute.Use(middleware.RateLimit(rateLimiter, "login", loginAllowedPerMin, metricsManager))
	loginRoute.HandleFunc("/a/login", handler.HandleLogin).Methods("POST", "OPTIONS").Name("login")

	router.HandleFunc("/a/logout", handler.HandleLogout).Methods("GET", "OPTIONS").Name("logout")
}

type LoginRequest struct {
	UserID string `json:"userId"`
	Secret string `json:"secret"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (handler *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("login, unmarshal json params: %s", err)
		http.Error(w, "login failed", http.StatusBadRequest)
		return
	}

	if req.UserID == "" {
		http.Error(w, "error, user id empty", http.StatusBadRequest)
		return
	}
	if req.Secret != handler.appSecret {
		log.Tracef("failed login attempt for user: %s", req.UserID)
		http.Error(w, "error, wrong credentials", http.StatusBadRequest)
		return
	}

	user, err := handler.usersRepo.Get(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			http.Error(w, "error, wrong credentials", http.StatusBadRequest)
			return
		}
		log.Errorf("login, get user %s: %s", req.UserID, err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	if !user.Active {
		http.Error(w, "error, wrong credentials", http.StatusBadRequest)
		return
	}

	token, err := handler.service.Login(r.Context(), user.ID)
	if err != nil {
		log.Errorf("login for user %s: %s", user.ID, err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(LoginResponse{Token: token})
	if err != nil {
		log.Errorf("login, marshal response: %s", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.WriteHeader(http.StatusOK)
		return
	}

	token := r.Header.Get("X-FITJOURNEY-TOKEN")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token == "" {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	if err := handler.service.Logout(r.Context(), token); err != nil {
		log.Tracef("logout: %s", err)
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	pkg.WriteTextResponseOK(w, "logged-out")
}
