package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitjourney/internal/middleware"
)

const testUserID = "e33a7cf0-9737-4c1c-9e9a-a6ec6b27db4d"

type testUsersRepo struct {
	users map[string]*User
}

func (r *testUsersRepo) Get(_ context.Context, id string) (*User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (r *testUsersRepo) StartJourney(_ context.Context, id string, startedAt time.Time) error {
	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if user.JourneyStarted() {
		return ErrJourneyAlreadyStarted
	}
	user.JourneyStartedAt = &startedAt
	return nil
}

func usersRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := middleware.ContextWithUserID(req.Context(), testUserID)
	return req.WithContext(ctx)
}

func newUsersTestRouter(repo *testUsersRepo) *mux.Router {
	router := mux.NewRouter()
	NewHandler(repo).SetupRoutes(router)
	return router
}

func TestHandler_GetMe(t *testing.T) {
	repo := &testUsersRepo{
		users: map[string]*User{
			testUserID: {ID: testUserID, Level: 3, Experience: 250, Active: true},
		},
	}
	router := newUsersTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, usersRequest("GET", "/users/me"))
	require.Equal(t, http.StatusOK, rr.Code)

	var user User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, testUserID, user.ID)
	assert.Equal(t, 3, user.Level)
	assert.Equal(t, 250, user.Experience)
	assert.False(t, user.JourneyStarted())
}

func TestHandler_GetMe_notFound(t *testing.T) {
	router := newUsersTestRouter(&testUsersRepo{users: map[string]*User{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, usersRequest("GET", "/users/me"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_GetMe_unauthorized(t *testing.T) {
	router := newUsersTestRouter(&testUsersRepo{users: map[string]*User{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_StartJourney(t *testing.T) {
	repo := &testUsersRepo{
		users: map[string]*User{
			testUserID: {ID: testUserID, Level: 1, Active: true},
		},
	}
	router := newUsersTestRouter(repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, usersRequest("POST", "/users/journey/start"))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StartJourneyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Journey started successfully", resp.Message)
	assert.False(t, resp.StartDate.IsZero())
	assert.True(t, repo.users[testUserID].JourneyStarted())

	// starting it again must be rejected
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, usersRequest("POST", "/users/journey/start"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "journey already started")
}
