// Package httperr defines the gateway's client-facing error envelope.
// Every non-2xx response body has the shape {"error": {"message", "type", "code"}}
// so callers can branch on type without parsing prose.
package httperr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error type tags returned in the "type" field.
const (
	TypeAuthInvalid        = "auth_invalid"
	TypeRateLimited        = "rate_limited"
	TypeValidation         = "validation_error"
	TypeUnknownModel       = "unknown_model"
	TypeModelInvocation    = "model_invocation_failed"
	TypeUnexpectedProvider = "unexpected_provider_response"
	TypeInternal           = "internal_error"
	TypeNotFound           = "not_found"
	TypeMethodNotAllowed   = "method_not_allowed"
)

// Error is a client-facing gateway error. Status is the HTTP status to
// respond with and is never serialized into the body.
type Error struct {
	Status  int    `json:"-"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// AuthInvalid covers both missing and unverifiable credentials. Callers must
// not vary the message based on why verification failed.
func AuthInvalid(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Type: TypeAuthInvalid, Message: message}
}

func RateLimited() *Error {
	return &Error{Status: http.StatusTooManyRequests, Type: TypeRateLimited, Message: "Rate limit exceeded. Please slow down."}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Status: http.StatusBadRequest, Type: TypeValidation, Message: fmt.Sprintf(format, args...)}
}

func UnknownModel(name string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Type:    TypeUnknownModel,
		Message: fmt.Sprintf("Unknown model: %s. Use /v1/models to see available models.", name),
	}
}

// ModelInvocation reports a backend failure. code is the provider's error
// code when one could be extracted, e.g. "ThrottlingException".
func ModelInvocation(code string) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Type:    TypeModelInvocation,
		Message: fmt.Sprintf("Model invocation failed: %s", code),
		Code:    code,
	}
}

func UnexpectedProviderResponse() *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Type:    TypeUnexpectedProvider,
		Message: "Unexpected response format from model",
	}
}

func Internal() *Error {
	return &Error{Status: http.StatusInternalServerError, Type: TypeInternal, Message: "Internal server error"}
}

func NotFound() *Error {
	return &Error{Status: http.StatusNotFound, Type: TypeNotFound, Message: "Unknown path"}
}

func MethodNotAllowed() *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Type: TypeMethodNotAllowed, Message: "Method not allowed"}
}

type envelope struct {
	Error *Error `json:"error"`
}

// Write serializes e to w with its status code. It is the single place
// error bodies are produced so the envelope stays uniform.
func Write(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(envelope{Error: e})
}
