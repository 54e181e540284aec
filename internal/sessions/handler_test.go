package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/2beens/fitjourney/internal/middleware"
)

type testSessionsService struct {
	outcome  *SessionOutcome
	progress *Progress
	view     *ProgressView
	session  *Session
	err      error

	lastTimezone string
}

func (s *testSessionsService) RecordSession(_ context.Context, _, timezone string, _ RecordSessionParams) (*SessionOutcome, error) {
	s.lastTimezone = timezone
	return s.outcome, s.err
}

func (s *testSessionsService) StartSet(_ context.Context, _ string, _, _, _ int) (*Progress, error) {
	return s.progress, s.err
}

func (s *testSessionsService) CompleteSet(_ context.Context, _ string, _, _, _, _ int) (*Progress, error) {
	return s.progress, s.err
}

func (s *testSessionsService) Progress(_ context.Context, _ string, _, _ int) (*ProgressView, error) {
	return s.view, s.err
}

func (s *testSessionsService) CompleteSession(_ context.Context, _, timezone string, _, _ int, _ string) (*SessionOutcome, error) {
	s.lastTimezone = timezone
	return s.outcome, s.err
}

func (s *testSessionsService) GetSession(_ context.Context, _ string, _ int) (*Session, error) {
	return s.session, s.err
}

func newTestHandlerRouter(service *testSessionsService) *mux.Router {
	router := mux.NewRouter()
	NewHandler(service).SetupRoutes(router)
	return router
}

func sessionsRequest(method, target string, body any) *http.Request {
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, target, &reqBody)
	ctx := middleware.ContextWithUserID(req.Context(), testUserID)
	return req.WithContext(ctx)
}

func TestHandler_Record(t *testing.T) {
	service := &testSessionsService{
		outcome: &SessionOutcome{
			Session:  &Session{ID: 1, UserID: testUserID, Status: StatusCompleted},
			XPGained: 50,
			Level:    1,
		},
	}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("POST", "/sessions/record", RecordSessionRequest{
		PlanID:     1,
		ExerciseID: 1,
		StartTime:  testMonday,
		EndTime:    testMonday.Add(10 * time.Minute),
		Sets:       []SetRecord{{SetNumber: 1, Reps: 10}, {SetNumber: 2, Reps: 10}},
		Timezone:   "Asia/Jakarta",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)

	var outcome SessionOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	assert.Equal(t, 50, outcome.XPGained)
	assert.Equal(t, "Asia/Jakarta", service.lastTimezone)
}

func TestHandler_Record_defaultTimezone(t *testing.T) {
	service := &testSessionsService{outcome: &SessionOutcome{Session: &Session{ID: 1}}}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("POST", "/sessions/record", RecordSessionRequest{
		PlanID:     1,
		ExerciseID: 1,
		StartTime:  testMonday,
		EndTime:    testMonday.Add(10 * time.Minute),
		Sets:       []SetRecord{{SetNumber: 1, Reps: 10}},
	}))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "UTC", service.lastTimezone)
}

func TestHandler_Record_emptySets(t *testing.T) {
	router := newTestHandlerRouter(&testSessionsService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("POST", "/sessions/record", RecordSessionRequest{
		PlanID: 1, ExerciseID: 1,
	}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_Record_unauthorized(t *testing.T) {
	router := newTestHandlerRouter(&testSessionsService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/sessions/record", bytes.NewBufferString("{}")))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_Record_validationError(t *testing.T) {
	service := &testSessionsService{
		err: fmt.Errorf("number of sets must match the plan (expected: 3, got: 2): %w", apperrors.ErrBadRequest),
	}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("POST", "/sessions/record", RecordSessionRequest{
		PlanID:     1,
		ExerciseID: 1,
		StartTime:  testMonday,
		EndTime:    testMonday.Add(10 * time.Minute),
		Sets:       []SetRecord{{SetNumber: 1, Reps: 10}, {SetNumber: 2, Reps: 10}},
	}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "expected: 3, got: 2")
}

func TestHandler_StartSet_conflict(t *testing.T) {
	service := &testSessionsService{err: ErrSetInProgress}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("POST", "/sessions/sets/start", SetRequest{
		PlanID: 1, ExerciseID: 1, SetNumber: 1,
	}))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandler_CompleteSet(t *testing.T) {
	reps := 10
	service := &testSessionsService{
		progress: &Progress{
			UserID: testUserID, PlanID: 1, ExerciseID: 1,
			Sets: []SetAttempt{{SetNumber: 1, Reps: &reps}},
		},
	}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("POST", "/sessions/sets/complete", SetRequest{
		PlanID: 1, ExerciseID: 1, SetNumber: 1, Reps: 10,
	}))
	require.Equal(t, http.StatusOK, rr.Code)

	var progress Progress
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &progress))
	require.Len(t, progress.Sets, 1)
}

func TestHandler_Progress(t *testing.T) {
	service := &testSessionsService{
		view: &ProgressView{Started: true, CurrentSet: 2, TotalSets: 3, CompletedSets: 1},
	}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("GET", "/sessions/1/1/progress", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var view ProgressView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, 2, view.CurrentSet)
}

func TestHandler_Progress_invalidIDs(t *testing.T) {
	router := newTestHandlerRouter(&testSessionsService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("GET", "/sessions/abc/1/progress", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_CompleteSession(t *testing.T) {
	service := &testSessionsService{
		outcome: &SessionOutcome{
			Session:       &Session{ID: 7, Status: StatusCompleted},
			PlanCompleted: true,
		},
	}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("POST", "/sessions/1/1/complete", CompleteSessionRequest{
		Notes: "done",
	}))
	require.Equal(t, http.StatusCreated, rr.Code)

	var outcome SessionOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	assert.True(t, outcome.PlanCompleted)
}

func TestHandler_Get(t *testing.T) {
	service := &testSessionsService{
		session: &Session{ID: 7, UserID: testUserID, Status: StatusCompleted},
	}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("GET", "/sessions/7", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var session Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	assert.Equal(t, 7, session.ID)
}

func TestHandler_Get_notFound(t *testing.T) {
	service := &testSessionsService{err: ErrSessionNotFound}
	router := newTestHandlerRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, sessionsRequest("GET", "/sessions/404", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
