// Package spec embeds the OpenAPI document served at /openapi.yaml and
// rendered under /docs.
package spec

import (
	"bytes"
	_ "embed"
	"net/http"
	"time"
)

//go:embed openapi.yaml
var document []byte

// loadedAt stands in for a modification time so clients can revalidate.
var loadedAt = time.Now().UTC()

// Document returns a copy of the embedded OpenAPI document.
func Document() []byte {
	return bytes.Clone(document)
}

// OpenAPIHandler serves the embedded OpenAPI document.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		http.ServeContent(w, r, "openapi.yaml", loadedAt, bytes.NewReader(document))
	}
}
