package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/portfolio-evaluator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeFindsWrappedError(t *testing.T) {
	base := NewMissingBenchmarkPriceError("bitcoin", types.ISOWeek{Year: 2024, Week: 3})
	wrapped := fmt.Errorf("failed to evaluate portfolio: %w", base)

	got := Categorize(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CategoryPriceUnavailable, got.Category)
	assert.Equal(t, CodeMissingBenchmarkPrice, got.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatusCode(wrapped))
}

func TestCategorizePlainError(t *testing.T) {
	got := Categorize(stderrors.New("boom"))
	assert.Equal(t, CategorySystem, got.Category)
	assert.Nil(t, Categorize(nil))
}

func TestCategorizeServiceError(t *testing.T) {
	got := Categorize(&types.ServiceError{Code: CodeAssetNotFound, Message: "unknown"})
	assert.Equal(t, CategoryAssetNotFound, got.Category)
	assert.Equal(t, http.StatusNotFound, got.StatusCode)
}

func TestHasCodeFollowsCauses(t *testing.T) {
	inner := NewMissingBenchmarkPriceError("bitcoin", types.ISOWeek{Year: 2024, Week: 3})
	outer := NewEvaluationIncompleteError("reddit", "abc", inner)

	assert.True(t, HasCode(outer, CodeEvaluationIncomplete))
	assert.True(t, HasCode(outer, CodeMissingBenchmarkPrice))
	assert.False(t, HasCode(outer, CodeNotPortfolio))
	assert.True(t, IsCategory(outer, CategoryPriceUnavailable))
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"external service", NewExternalServiceError("coin_gecko", stderrors.New("502")), true},
		{"database", NewDatabaseError("upsert price", stderrors.New("conn reset")), true},
		{"extraction", NewExtractionError("abc", stderrors.New("bad json")), false},
		{"not found", NewNotFoundError("portfolio", "abc"), false},
		{"unavailable", NewServiceUnavailableError("postgres"), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestUserAndSystemErrors(t *testing.T) {
	assert.True(t, IsUserError(NewInvalidURLError("http://x", "not reddit")))
	assert.False(t, IsSystemError(NewInvalidURLError("http://x", "not reddit")))
	assert.True(t, IsSystemError(NewInternalError("oops", nil)))
}

func TestToServiceError(t *testing.T) {
	err := NewAssetNotFoundError("Dogecoin", "DOGE")
	svc := err.ToServiceError()
	assert.Equal(t, CodeAssetNotFound, svc.Code)
	assert.Equal(t, "DOGE", svc.Details["abbreviation"])
}
