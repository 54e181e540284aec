package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/fitjourney/internal/apperrors"
)

func TestRepo_List_invalidPagination(t *testing.T) {
	// the pagination guards run before any query, so no pool is needed
	repo := NewRepo(nil)
	ctx := context.Background()

	for name, params := range map[string]ListParams{
		"zero page":      {Page: 0, Limit: 10},
		"negative page":  {Page: -1, Limit: 10},
		"zero limit":     {Page: 1, Limit: 0},
		"limit too high": {Page: 1, Limit: MaxLimit + 1},
	} {
		_, _, err := repo.List(ctx, testUserID, params)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, apperrors.ErrBadRequest, name)
	}
}
