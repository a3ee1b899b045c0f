package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error object carried by every failed response. Type is the
// machine-readable error kind (e.g. "invalid_token"), Status mirrors the HTTP
// or reply status.
type ErrorBody struct {
	Status  int                    `json:"status"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// NewErrorResponse builds the error envelope
func NewErrorResponse(status int, errType, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Status:  status,
		Type:    errType,
		Message: message,
		Details: details,
	}}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response wrapping data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated writes a 201 Created response wrapping data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, "validation", message, details)
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	return WriteError(w, http.StatusUnauthorized, "invalid_token", message, nil)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return WriteError(w, http.StatusInternalServerError, "internal", message, nil)
}

// WriteError writes the error envelope with the given status
func WriteError(w http.ResponseWriter, status int, errType, message string, details map[string]interface{}) error {
	return WriteJSON(w, status, NewErrorResponse(status, errType, message, details))
}
