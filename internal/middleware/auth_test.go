package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTokenChecker struct {
	tokens map[string]string
}

func (c *testTokenChecker) UserID(_ context.Context, token string) (string, error) {
	userID, ok := c.tokens[token]
	if !ok {
		return "", errors.New("unauthorized")
	}
	return userID, nil
}

func TestAuthMiddlewareHandler_AuthCheck(t *testing.T) {
	checker := &testTokenChecker{
		tokens: map[string]string{
			"valid-token": "user-1",
		},
	}
	authMiddleware := NewAuthMiddlewareHandler(checker)

	testCases := []struct {
		name               string
		path               string
		method             string
		token              string
		bearer             string
		expectedStatusCode int
		expectedUserID     string
	}{
		{
			name:               "AllowedPathWithoutToken",
			path:               "/a/login",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "VersionWithoutToken",
			path:               "/version",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "ProtectedPathWithoutToken",
			path:               "/plans",
			method:             "GET",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "ValidToken",
			path:               "/plans",
			method:             "GET",
			token:              "valid-token",
			expectedStatusCode: http.StatusOK,
			expectedUserID:     "user-1",
		},
		{
			name:               "ValidBearerToken",
			path:               "/plans",
			method:             "GET",
			bearer:             "Bearer valid-token",
			expectedStatusCode: http.StatusOK,
			expectedUserID:     "user-1",
		},
		{
			name:               "InvalidToken",
			path:               "/plans",
			method:             "GET",
			token:              "invalid-token",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "OptionsPreflight",
			path:               "/plans",
			method:             "OPTIONS",
			expectedStatusCode: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, tc.path, nil)
			require.NoError(t, err)
			if tc.token != "" {
				req.Header.Add("X-FITJOURNEY-TOKEN", tc.token)
			}
			if tc.bearer != "" {
				req.Header.Add("Authorization", tc.bearer)
			}

			var gotUserID string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID, _ = UserIDFromContext(r.Context())
			})

			rr := httptest.NewRecorder()
			authMiddleware.AuthCheck()(handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
			if tc.expectedUserID != "" {
				assert.Equal(t, tc.expectedUserID, gotUserID)
			}
		})
	}
}
