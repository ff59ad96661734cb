package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"aisum/internal/auth"
	"aisum/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteError writes err with the status its code maps to.
func WriteError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.InternalError
	}
	resp := ErrorResponse{Error: err.Error(), Code: string(code)}
	var e *errors.Error
	if stderrors.As(err, &e) {
		resp.Details = e.Details
	}
	WriteJSON(w, resp, StatusFor(code))
}

// StatusFor maps error codes to HTTP status codes.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.InvalidInput:
		return http.StatusBadRequest
	case errors.Unauthorized:
		return http.StatusUnauthorized
	case errors.NotFound:
		return http.StatusNotFound
	case errors.RateLimited:
		return http.StatusTooManyRequests
	case errors.TransientService:
		return http.StatusServiceUnavailable
	case errors.MalformedResponse, errors.RemoteError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 with message as the error text.
func BadRequest(w http.ResponseWriter, message string) {
	WriteJSON(w, ErrorResponse{Error: message, Code: string(errors.InvalidInput)}, http.StatusBadRequest)
}

// MethodNotAllowed writes a 405.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSON(w, ErrorResponse{Error: "method not allowed", Code: string(errors.InvalidInput)}, http.StatusMethodNotAllowed)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string) {
	WriteJSON(w, ErrorResponse{Error: message, Code: string(errors.InternalError)}, http.StatusInternalServerError)
}

func writeAuthFailure(w http.ResponseWriter, res *auth.Result) {
	status := http.StatusUnauthorized
	code := errors.Unauthorized
	switch {
	case res.RateLimited:
		status = http.StatusTooManyRequests
		code = errors.RateLimited
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
	case res.ErrorCode == auth.ErrCodeInsufficientScope:
		status = http.StatusForbidden
	default:
		w.Header().Set("WWW-Authenticate", `Bearer realm="aisum"`)
	}
	WriteJSON(w, ErrorResponse{Error: res.ErrorMessage, Code: string(code), Details: res.ErrorCode}, status)
}
