package auth

import "context"

var _ Checker = (*LoginChecker)(nil)
var _ Checker = (*LoginTestChecker)(nil)

// Checker resolves an auth token to the authenticated user id.
type Checker interface {
	UserID(ctx context.Context, token string) (string, error)
}
