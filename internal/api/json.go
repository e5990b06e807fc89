package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"dronenav/internal/integrations/hashcode"
	"dronenav/internal/plan"
	"dronenav/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps package sentinel errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	var tooBig *http.MaxBytesError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, plan.ErrInvalidProblem), errors.Is(err, hashcode.ErrMalformed):
		status = http.StatusBadRequest
	case errors.As(err, &tooBig):
		status = http.StatusRequestEntityTooLarge
	}
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}
