package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationSeatRange     ErrorCode = "validation_seat_quantity_out_of_range"
	ErrCodeValidationInvalidTier   ErrorCode = "validation_invalid_alumni_tier"
	ErrCodeValidationInvalidBucket ErrorCode = "validation_invalid_alumni_bucket"
	ErrCodeValidationInvalidEmail  ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidSlug   ErrorCode = "validation_invalid_org_slug"
	ErrCodeValidationFailed        ErrorCode = "validation_failed"

	// Auth (401)
	ErrCodeAuthRequired       ErrorCode = "auth_required"
	ErrCodeAuthInvalidCreds   ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthSessionExpired ErrorCode = "auth_session_expired"

	// Permission (403)
	ErrCodePermissionRole        ErrorCode = "permission_role_insufficient"
	ErrCodePermissionOrgMismatch ErrorCode = "permission_organization_mismatch"
	ErrCodePermissionRevoked     ErrorCode = "permission_membership_revoked"

	// Not Found (404)
	ErrCodeNotFoundOrg          ErrorCode = "not_found_organization"
	ErrCodeNotFoundUser         ErrorCode = "not_found_user"
	ErrCodeNotFoundMember       ErrorCode = "not_found_member"
	ErrCodeNotFoundSubscription ErrorCode = "not_found_subscription"
	ErrCodeNotFoundInvite       ErrorCode = "not_found_invite"

	// Conflict (409)
	ErrCodeConflictSubscriptionState ErrorCode = "conflict_subscription_state"
	ErrCodeConflictNoProviderRef     ErrorCode = "conflict_missing_provider_reference"
	ErrCodeConflictSlugExists        ErrorCode = "conflict_slug_exists"
	ErrCodeConflictEmailExists       ErrorCode = "conflict_email_exists"
	ErrCodeConflictConcurrent        ErrorCode = "conflict_concurrent_modification"

	// Billing (422)
	ErrCodeBillingSalesLed      ErrorCode = "billing_sales_led_tier"
	ErrCodeBillingNothingToBill ErrorCode = "billing_nothing_to_bill"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamQueue       ErrorCode = "upstream_queue_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimit   ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "billing_"):
		return http.StatusUnprocessableEntity
	case s == string(ErrCodeUpstreamRateLimit):
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type used throughout the
// platform. All domain and handler errors are expressed as AppError to
// enable consistent error formatting, HTTP status mapping, and error
// chain support. Expected failures are returned, never panicked.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates an AppError carrying structured details
// for the client (e.g. per-field validation failures).
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
