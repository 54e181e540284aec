package auth

import (
	"context"
	"fmt"

	"github.com/2beens/fitjourney/internal/apperrors"
)

type LoginTestChecker struct {
	// token -> user id
	LoggedSessions map[string]string
}

func NewLoginTestChecker() *LoginTestChecker {
	return &LoginTestChecker{
		LoggedSessions: map[string]string{},
	}
}

func (c *LoginTestChecker) UserID(_ context.Context, token string) (string, error) {
	userID, ok := c.LoggedSessions[token]
	if !ok {
		return "", fmt.Errorf("%w: unknown token", apperrors.ErrUnauthorized)
	}
	return userID, nil
}
