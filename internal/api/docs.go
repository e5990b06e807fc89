package api

import (
    _ "embed"
    "encoding/json"
    "fmt"
    "net/http"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPIHandler serves the OpenAPI document
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "application/yaml")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(openAPISpec)
}

// OpenAPIJSONHandler serves the same document converted to JSON.
func (s *Server) OpenAPIJSONHandler(w http.ResponseWriter, r *http.Request) {
    var doc any
    if err := yaml.Unmarshal(openAPISpec, &doc); err != nil {
        writeProblem(w, http.StatusInternalServerError, "OpenAPI not available", err.Error(), r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(jsonCompatible(doc))
}

// jsonCompatible turns map[any]any nodes, which encoding/json rejects, into
// string-keyed maps.
func jsonCompatible(v any) any {
    switch t := v.(type) {
    case map[string]any:
        for k, e := range t { t[k] = jsonCompatible(e) }
        return t
    case map[any]any:
        out := make(map[string]any, len(t))
        for k, e := range t { out[fmt.Sprint(k)] = jsonCompatible(e) }
        return out
    case []any:
        for i, e := range t { t[i] = jsonCompatible(e) }
        return t
    }
    return v
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.yaml
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>dronenav API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
    </head><body>
    <redoc spec-url="/openapi.yaml"></redoc>
    </body></html>`))
}
