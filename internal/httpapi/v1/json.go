package v1

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/tinoosan/budgetledger/internal/errs"
)

// envelope is the shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, status int, data any) {
	toJSON(w, status, envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, envelope{Success: false, Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "bad_request")
}

// writeError maps a service error onto status and envelope. Store failures
// carry their underlying message as-is.
func writeError(w http.ResponseWriter, err error) {
	writeErr(w, statusFor(err), err.Error(), errs.Code(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// requireJSON answers 415 unless the body is declared as application/json.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		writeErr(w, http.StatusUnsupportedMediaType, "content type must be application/json", "unsupported_media_type")
		return false
	}
	return true
}

// decodeJSON rejects unknown fields and trailing data. A false return means
// the response was already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			writeError(w, ve)
			return false
		}
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	if dec.More() {
		badRequest(w, "invalid JSON: trailing data")
		return false
	}
	return true
}
