// Package problem writes RFC 7807 error bodies.
package problem

import (
	"encoding/json"
	"net/http"
	"strings"
)

const ContentType = "application/problem+json"

const baseTypeURL = "https://errors.wallet-ledger.dev/"

// Details is an RFC 7807 problem with two extensions: Code repeats the type
// slug for clients that switch on it, and Retryable tells them whether the
// same request may succeed later.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

// Type expands a slug such as "wallet/insufficient-funds" to a type URI.
func Type(slug string) string {
	return baseTypeURL + slug
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Write sends the problem. An empty title defaults to the status text and an
// empty type to about:blank.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	d := Details{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Code:      strings.TrimPrefix(problemType, baseTypeURL),
		Retryable: retryable(status),
		RequestID: w.Header().Get("X-Trace-ID"),
	}
	if d.Code == problemType {
		d.Code = ""
	}
	if r != nil {
		d.Instance = r.URL.Path
		if d.RequestID == "" {
			d.RequestID = r.Header.Get("X-Trace-ID")
		}
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d)
}
