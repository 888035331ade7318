package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", Clone(ErrSessionNotFound, "session s-1 expired"))

	appErr := FromError(wrapped)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "session s-1 expired", appErr.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.ErrorContains(t, appErr, "boom")
	assert.Nil(t, FromError(nil))
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrValidation, "month is required")
	assert.Equal(t, "month is required", clone.Message)
	assert.Equal(t, "validation failed", ErrValidation.Message)
	assert.True(t, errors.Is(Wrap(ErrCacheMiss, "X", 500, "x"), ErrCacheMiss))
}

func TestWithDetailCopies(t *testing.T) {
	base := Clone(ErrValidation, "invalid compile payload")
	detailed := WithDetail(base, "fields", []string{"month"})
	detailed = WithDetail(detailed, "hint", "use YYYY-MM")

	assert.Nil(t, base.Details)
	assert.Equal(t, []string{"month"}, detailed.Details["fields"])
	assert.Equal(t, "use YYYY-MM", detailed.Details["hint"])
	assert.Nil(t, Clone(detailed, "").Details)
	assert.Nil(t, WithDetail(nil, "k", "v"))
}

func TestLookupErrorsShareNotFound(t *testing.T) {
	for _, err := range []*Error{ErrSessionNotFound, ErrCandidateNotFound, ErrExportNotFound} {
		assert.Equal(t, ErrNotFound.Code, err.Code, err.Message)
		assert.Equal(t, ErrNotFound.Status, err.Status, err.Message)
		assert.NotEqual(t, ErrNotFound.Message, err.Message)
	}
}
