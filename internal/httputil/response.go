// Package httputil contains shared HTTP utilities for consistent response formatting across handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nadmax/opskpi/internal/record"
)

const (
	OwnerHeader  = "X-Owner"
	DefaultOwner = "default"
)

func WriteJSONError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// WriteMessage answers 200 with a user-facing message in place of a result.
func WriteMessage(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"message": message,
	})
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

// WriteComputeError renders a KPI failure. Missing columns are a normal outcome shown as a
// message; anything else is a server error.
func WriteComputeError(w http.ResponseWriter, err error) {
	var missing *record.MissingColumnsError
	if errors.As(err, &missing) {
		WriteMessage(w, missing.Error())
		return
	}
	WriteJSONError(w, err.Error(), http.StatusInternalServerError)
}

// Owner names the tenant whose datasets a request reads.
func Owner(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" {
		return owner
	}
	return DefaultOwner
}
