package errors

const (
	HttpInternalError        = "internal_error"
	HttpInvalidJsonError     = "invalid_json"
	HttpNotFoundError        = "not_found"
	HttpQuotaExceededError   = "quota_exceeded"
	HttpEmptyAudienceError   = "empty_audience"
	HttpDeliveryFailedError  = "delivery_failed"
	HttpQuotaCheckFailed     = "quota_check_failed"
	HttpDuplicateEntityError = "duplicate_entity"
)

// ErrorResponse is the error response body for all API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
