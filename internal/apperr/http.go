package apperr

import (
	"encoding/json"
	"net/http"
)

// Body is the JSON error envelope returned by every endpoint.
type Body struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
	Details any          `json:"details,omitempty"`
}

func (e *Error) Body() Body {
	fields := e.Fields
	if fields == nil {
		fields = []FieldError{}
	}
	return Body{Message: e.Message, Errors: fields, Details: e.Details}
}

// Write renders err with the status of its kind.
func Write(w http.ResponseWriter, err error) {
	e := As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.Status())
	_ = json.NewEncoder(w).Encode(e.Body())
}
