package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/portfolio-evaluator/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents invalid caller input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents a required record that does not exist
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryExtraction represents a failed or unparsable model interpretation
	CategoryExtraction ErrorCategory = "extraction"
	// CategoryAssetNotFound represents an asset no price provider can resolve
	CategoryAssetNotFound ErrorCategory = "asset_not_found"
	// CategoryPriceUnavailable represents a required price that could not be obtained
	CategoryPriceUnavailable ErrorCategory = "price_unavailable"
	// CategoryExternalService represents a provider, model or FX failure
	CategoryExternalService ErrorCategory = "external_service"
	// CategoryPipeline represents a single-post pipeline outcome other than success
	CategoryPipeline ErrorCategory = "pipeline"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// Error codes that callers match on
const (
	CodeNotFound              = "NOT_FOUND"
	CodeExtractionFailed      = "EXTRACTION_FAILED"
	CodeAssetNotFound         = "ASSET_NOT_FOUND"
	CodePriceUnavailable      = "PRICE_UNAVAILABLE"
	CodeMissingBenchmarkPrice = "MISSING_BENCHMARK_PRICE"
	CodeExternalService       = "EXTERNAL_SERVICE_ERROR"
	CodeNotPortfolio          = "NOT_A_PORTFOLIO"
	CodeEvaluationIncomplete  = "EVALUATION_INCOMPLETE"
	CodeInvalidParameter      = "INVALID_PARAMETER"
	CodeZeroInvestment        = "ZERO_INVESTMENT"
	CodeAlreadyInterpreted    = "ALREADY_INTERPRETED"
	CodeNotInterpreted        = "NOT_INTERPRETED"
	CodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Validation errors (4xx)

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidURLError creates an error for a post URL the pipeline cannot handle
func NewInvalidURLError(url string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_URL",
		Message:    fmt.Sprintf("invalid post url: %s", reason),
		Details: map[string]interface{}{
			"url": url,
		},
	}
}

// NewZeroInvestmentError is returned when a portfolio has no invested value
// and percentage metrics are undefined
func NewZeroInvestmentError(source, sourceID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeZeroInvestment,
		Message:    "total investment is zero, profit percentage is undefined",
		Details: map[string]interface{}{
			"source":   source,
			"sourceId": sourceID,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// Core pipeline errors

// NewExtractionError creates an error for a model call that failed or
// returned output that could not be parsed
func NewExtractionError(sourceID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExtraction,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeExtractionFailed,
		Message:    fmt.Sprintf("could not interpret post %s", sourceID),
		Cause:      cause,
		Details: map[string]interface{}{
			"sourceId": sourceID,
		},
	}
}

// NewAssetNotFoundError creates an error for an asset that no price provider knows
func NewAssetNotFoundError(name, abbreviation string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAssetNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeAssetNotFound,
		Message:    fmt.Sprintf("no price provider knows %s (%s)", name, abbreviation),
		Details: map[string]interface{}{
			"name":         name,
			"abbreviation": abbreviation,
		},
	}
}

// NewPriceUnavailableError creates an error for an asset price that could not
// be found or fetched for an ISO week bucket
func NewPriceUnavailableError(asset string, week types.ISOWeek, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPriceUnavailable,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodePriceUnavailable,
		Message:    fmt.Sprintf("price for %s unavailable in %s", asset, week),
		Cause:      cause,
		Details: map[string]interface{}{
			"asset":   asset,
			"isoWeek": week.Week,
			"isoYear": week.Year,
		},
	}
}

// NewMissingBenchmarkPriceError is returned when the benchmark asset has no
// tracked price for the week a portfolio was created in
func NewMissingBenchmarkPriceError(asset string, week types.ISOWeek) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPriceUnavailable,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeMissingBenchmarkPrice,
		Message:    fmt.Sprintf("missing benchmark price for %s in %s", asset, week),
		Details: map[string]interface{}{
			"asset":   asset,
			"isoWeek": week.Week,
			"isoYear": week.Year,
		},
	}
}

// NewExternalServiceError creates an error for a failed provider, model or FX call
func NewExternalServiceError(service string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExternalService,
		StatusCode: http.StatusBadGateway,
		Code:       CodeExternalService,
		Message:    fmt.Sprintf("external service error: %s", service),
		Cause:      cause,
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewExternalTimeoutError creates an error for an external call that hit its deadline
func NewExternalTimeoutError(service string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryExternalService,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "EXTERNAL_SERVICE_TIMEOUT",
		Message:    fmt.Sprintf("external service timeout: %s", service),
		Cause:      cause,
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewExternalRateLimitError creates an error for a provider rejecting us with 429
func NewExternalRateLimitError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "EXTERNAL_RATE_LIMIT",
		Message:    fmt.Sprintf("external service rate limit exceeded: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Pipeline outcomes

// NewNotPortfolioError reports a post that was interpreted and holds no portfolio
func NewNotPortfolioError(source, sourceID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPipeline,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeNotPortfolio,
		Message:    fmt.Sprintf("post %s/%s is not a portfolio", source, sourceID),
		Details: map[string]interface{}{
			"source":   source,
			"sourceId": sourceID,
		},
	}
}

// NewEvaluationIncompleteError reports a portfolio post whose evaluation aborted
func NewEvaluationIncompleteError(source, sourceID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPipeline,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeEvaluationIncomplete,
		Message:    fmt.Sprintf("portfolio %s/%s could not be evaluated", source, sourceID),
		Cause:      cause,
		Details: map[string]interface{}{
			"source":   source,
			"sourceId": sourceID,
		},
	}
}

// NewAlreadyInterpretedError rejects a second interpretation of a post
func NewAlreadyInterpretedError(source, sourceID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusConflict,
		Code:       CodeAlreadyInterpreted,
		Message:    fmt.Sprintf("post %s/%s was already interpreted", source, sourceID),
		Details: map[string]interface{}{
			"source":   source,
			"sourceId": sourceID,
		},
	}
}

// NewNotInterpretedError rejects purchases for a post whose interpretation
// has not been recorded yet
func NewNotInterpretedError(source, sourceID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusConflict,
		Code:       CodeNotInterpreted,
		Message:    fmt.Sprintf("post %s/%s has not been interpreted", source, sourceID),
		Details: map[string]interface{}{
			"source":   source,
			"sourceId": sourceID,
		},
	}
}

// NewRateLimitError creates a rate limit error for API callers
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// System errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error. Wrapped categorized errors are
// found through the error chain.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case CodeInvalidParameter, "INVALID_URL":
		category, status = CategoryValidation, http.StatusBadRequest
	case CodeNotFound, "PORTFOLIO_NOT_FOUND", "POST_NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	case CodeAssetNotFound:
		category, status = CategoryAssetNotFound, http.StatusNotFound
	case CodeExtractionFailed:
		category, status = CategoryExtraction, http.StatusUnprocessableEntity
	case CodePriceUnavailable, CodeMissingBenchmarkPrice:
		category, status = CategoryPriceUnavailable, http.StatusUnprocessableEntity
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// HasCode reports whether err is a categorized error with the given code
func HasCode(err error, code string) bool {
	var catErr *CategorizedError
	if !stderrors.As(err, &catErr) {
		return false
	}
	if catErr.Code == code {
		return true
	}
	return catErr.Cause != nil && HasCode(catErr.Cause, code)
}

// IsCategory reports whether err carries the given category anywhere in its chain
func IsCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	if !stderrors.As(err, &catErr) {
		return false
	}
	if catErr.Category == category {
		return true
	}
	return catErr.Cause != nil && IsCategory(catErr.Cause, category)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryExternalService, CategoryDatabase, CategoryCache, CategoryRateLimit:
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
