package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/provenance"
)

// Response is the envelope for every JSON response.
type Response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError carries a stable code and a readable message.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Codes for failures that do not come from the store.
const (
	CodeBadRequest = "BAD_REQUEST"
	CodeInternal   = "INTERNAL"
	CodeClosed     = "STORE_CLOSED"
	CodeCanceled   = "CANCELED"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v) //nolint:errcheck // client went away
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Status: "error", Error: &ResponseError{Code: code, Message: message}})
}

// writeStoreError maps a store failure to its HTTP status.
func writeStoreError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

// classify returns the HTTP status and envelope code for err.
func classify(err error) (int, string) {
	switch ir.CodeOf(err) {
	case ir.ErrCodeNotFound:
		return http.StatusNotFound, string(ir.ErrCodeNotFound)
	case ir.ErrCodeIntegrityConflict:
		return http.StatusConflict, string(ir.ErrCodeIntegrityConflict)
	case ir.ErrCodeInvalidTransition:
		return http.StatusConflict, string(ir.ErrCodeInvalidTransition)
	case ir.ErrCodeEncoding, ir.ErrCodeDanglingReference, ir.ErrCodeUnknownRelation, ir.ErrCodeSchemaViolation:
		return http.StatusUnprocessableEntity, string(ir.CodeOf(err))
	case ir.ErrCodeAppendTimeout:
		return http.StatusServiceUnavailable, string(ir.ErrCodeAppendTimeout)
	}
	switch {
	case errors.Is(err, provenance.ErrClosed):
		return http.StatusServiceUnavailable, CodeClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, CodeCanceled
	}
	return http.StatusInternalServerError, CodeInternal
}
