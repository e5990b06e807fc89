// Package api implements HTTP handlers and helpers for the drone planning service.
package api

import (
    "errors"
    "net/http"
    "strings"

    "dronenav/internal/auth"
)

var errUnauthenticated = errors.New("missing credentials")

type Principal struct {
    Tenant  string
    Role    string // admin, planner, viewer
    Subject string
}

// principal extracts tenant and role from the bearer token. Without a token,
// dev mode falls back to X-Tenant-Id/X-Role headers; hmac mode refuses.
func (s *Server) principal(r *http.Request) (Principal, error) {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        pr, err := s.Auth.Verify(tok)
        if err != nil { return Principal{}, err }
        return Principal{Tenant: pr.Tenant, Role: pr.Role, Subject: pr.Subject}, nil
    }
    if s.Auth != nil && s.Auth.Mode != "dev" {
        return Principal{}, errUnauthenticated
    }
    tenant := r.Header.Get("X-Tenant-Id")
    role := strings.ToLower(r.Header.Get("X-Role"))
    if tenant == "" {
        tenant = "t_demo"
    }
    if role == "" {
        role = auth.RoleAdmin
    }
    return Principal{Tenant: tenant, Role: role}, nil
}

// requireRole writes a problem response and returns false unless the caller
// is authenticated with one of roles. Admin passes every check.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (Principal, bool) {
    p, err := s.principal(r)
    if err != nil {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
        return Principal{}, false
    }
    if p.IsAdmin() { return p, true }
    for _, role := range roles {
        if p.Role == role { return p, true }
    }
    writeProblem(w, http.StatusForbidden, "Forbidden", strings.Join(roles, " or ")+" role required", r.URL.Path)
    return Principal{}, false
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == auth.RoleAdmin }
