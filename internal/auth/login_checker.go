package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitjourney/internal/apperrors"
	"github.com/go-redis/redis/v8"
)

type LoginChecker struct {
	ttl         time.Duration
	redisClient *redis.Client
}

func NewLoginChecker(ttl time.Duration, redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		ttl:         ttl,
		redisClient: redisClient,
	}
}

// UserID resolves a session token to the user id it was issued for.
// A missing or expired token maps to ErrUnauthorized.
func (lc *LoginChecker) UserID(ctx context.Context, token string) (string, error) {
	sessionKey := sessionKeyPrefix + token
	cmd := lc.redisClient.Get(ctx, sessionKey)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: unknown token", apperrors.ErrUnauthorized)
		}
		return "", err
	}

	userID := cmd.Val()
	if userID == "" {
		return "", fmt.Errorf("%w: empty session", apperrors.ErrUnauthorized)
	}

	return userID, nil
}
