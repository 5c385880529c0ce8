package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition in the
// form MODULE_NNN.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeMessagingError     ErrorCode = "COMMON_016"
)

// Aliases used at call sites.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeRateLimit    = ErrCodeTooManyRequests
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")

	CodeDatabaseError  = ErrCodeDatabaseError
	CodeCacheError     = ErrCodeCacheError
	CodeStorageError   = ErrCodeStorageError
	CodeMessagingError = ErrCodeMessagingError
)

// Provider Module Error Codes
const (
	ErrCodeProviderUnavailable   ErrorCode = "PRV_001"
	ErrCodeProviderRateLimited   ErrorCode = "PRV_002"
	ErrCodeProviderRejected      ErrorCode = "PRV_003"
	ErrCodeProviderBadOutput     ErrorCode = "PRV_004"
	ErrCodeBothProvidersFailed   ErrorCode = "PRV_005"
	ErrCodeProviderNotConfigured ErrorCode = "PRV_006"
)

// Rule Module Error Codes
const (
	ErrCodeRuleNotFound          ErrorCode = "RUL_001"
	ErrCodeRuleShapeInvalid      ErrorCode = "RUL_002"
	ErrCodeRuleTransitionInvalid ErrorCode = "RUL_003"
	ErrCodeContractNotFound      ErrorCode = "RUL_004"
)

// Calculation Module Error Codes
const (
	ErrCodeCalculationCancelled ErrorCode = "CAL_001"
	ErrCodeCalculationInput     ErrorCode = "CAL_002"
	ErrCodeNoActiveRules        ErrorCode = "CAL_003"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeProviderUnavailable:   http.StatusServiceUnavailable,
	ErrCodeProviderRateLimited:   http.StatusTooManyRequests,
	ErrCodeProviderRejected:      http.StatusBadGateway,
	ErrCodeProviderBadOutput:     http.StatusBadGateway,
	ErrCodeBothProvidersFailed:   http.StatusServiceUnavailable,
	ErrCodeProviderNotConfigured: http.StatusServiceUnavailable,

	ErrCodeRuleNotFound:          http.StatusNotFound,
	ErrCodeRuleShapeInvalid:      http.StatusUnprocessableEntity,
	ErrCodeRuleTransitionInvalid: http.StatusConflict,
	ErrCodeContractNotFound:      http.StatusNotFound,

	ErrCodeCalculationCancelled: http.StatusRequestTimeout,
	ErrCodeCalculationInput:     http.StatusBadRequest,
	ErrCodeNoActiveRules:        http.StatusUnprocessableEntity,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "messaging error",

	ErrCodeProviderUnavailable:   "AI provider unavailable",
	ErrCodeProviderRateLimited:   "AI provider rate limited",
	ErrCodeProviderRejected:      "AI provider rejected the request",
	ErrCodeProviderBadOutput:     "AI provider returned malformed output",
	ErrCodeBothProvidersFailed:   "both AI providers failed",
	ErrCodeProviderNotConfigured: "AI provider not configured",

	ErrCodeRuleNotFound:          "royalty rule not found",
	ErrCodeRuleShapeInvalid:      "royalty rule shape invalid",
	ErrCodeRuleTransitionInvalid: "invalid rule status transition",
	ErrCodeContractNotFound:      "contract not found",

	ErrCodeCalculationCancelled: "calculation cancelled",
	ErrCodeCalculationInput:     "invalid calculation input",
	ErrCodeNoActiveRules:        "no active rules for contract",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
