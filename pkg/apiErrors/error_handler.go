package apiErrors

import (
	"encoding/json"
	"net/http"
)

// Error codes returned to API clients
const (
	// Validation errors (VAL)
	ErrInvalidRequest      = "VAL_001" // Malformed request
	ErrMissingRequiredData = "VAL_002" // Required data missing
	ErrInvalidField        = "VAL_003" // Field not allowed or badly typed

	// Resource errors (RES)
	ErrResourceNotFound = "RES_001" // Referenced document does not exist
	ErrResourceConflict = "RES_002" // Uniqueness constraint violated

	// Server errors (SRV)
	ErrInternalServer    = "SRV_001" // Internal server error
	ErrDatabaseOperation = "SRV_002" // Document store operation failed
	ErrExternalService   = "SRV_003" // Destination platform error
	ErrCommunication     = "SRV_004" // Communication error
)

// Error-code to HTTP-status mapping
var httpStatusMap = map[string]int{
	ErrInvalidRequest:      http.StatusBadRequest,
	ErrMissingRequiredData: http.StatusBadRequest,
	ErrInvalidField:        http.StatusBadRequest,
	ErrResourceNotFound:    http.StatusNotFound,
	ErrResourceConflict:    http.StatusConflict,
	ErrInternalServer:      http.StatusInternalServerError,
	ErrDatabaseOperation:   http.StatusInternalServerError,
	ErrExternalService:     http.StatusBadGateway,
	ErrCommunication:       http.StatusServiceUnavailable,
}

// APIError is the standardized error payload
type APIError struct {
	Code    string `json:"code"`              // Client-facing error code
	Message string `json:"message,omitempty"` // Descriptive message (optional)
	Details any    `json:"details,omitempty"` // Additional details (optional)
}

// WriteError writes the standardized error to the HTTP response
func WriteError(w http.ResponseWriter, code string, message string, details any) {
	status, exists := httpStatusMap[code]
	if !exists {
		status = http.StatusInternalServerError
	}

	apiErr := APIError{
		Code:    code,
		Message: message,
		Details: details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiErr)
}

// FromError builds an API error payload from a Go error.
func FromError(err error, code string) APIError {
	if err == nil {
		return APIError{
			Code:    ErrInternalServer,
			Message: "unknown error",
		}
	}

	return APIError{
		Code:    code,
		Message: err.Error(),
	}
}
