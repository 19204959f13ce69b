package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/clinicslots/libs/apperr"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a classified error to its status code. Unclassified
// errors become 500 without exposing their text.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindNotFound:
		status = http.StatusNotFound
	}
	WriteJSON(w, status, errorBody{
		Error:   string(apperr.KindOf(err)),
		Message: apperr.MessageOf(err),
	})
}

// DecodeJSON decodes a request body, rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid json body")
	}
	if dec.More() {
		return apperr.Validation("invalid json body")
	}
	return nil
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e) && e.Kind != apperr.KindInternal
}
