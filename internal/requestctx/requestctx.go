// Package requestctx carries per-request metadata across the call graph.
//
// A Scope is attached to the request's context.Context by the authentication
// middleware and travels with every derived context, including contexts handed
// to detached goroutines. Code outside any scope observes nothing.
package requestctx

import "context"

type scopeKey struct{}

// Actor is the authenticated principal resolved for the current request.
type Actor struct {
	ID          int64
	Email       string
	Name        string
	CompanyID   int64
	Roles       []ActorRole
	Permissions map[string]struct{}

	// ImpersonatorID is non-zero when the credential was issued by an
	// impersonation session; it identifies the original actor.
	ImpersonatorID int64
}

// ActorRole is a role snapshot attached to the actor at authentication time.
type ActorRole struct {
	Name  string
	Level int
}

// HasPermission reports whether the snapshot contains the named permission.
func (a *Actor) HasPermission(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.Permissions[name]
	return ok
}

// Scope holds the request-scoped values consulted by downstream layers.
type Scope struct {
	Actor     *Actor
	IP        string
	UserAgent string
	values    map[string]string
}

// Set stores an auxiliary key/value pair on the scope.
func (s *Scope) Set(key, value string) {
	if s == nil {
		return
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
}

// Get returns an auxiliary value, or "" when absent or outside a scope.
func (s *Scope) Get(key string) string {
	if s == nil || s.values == nil {
		return ""
	}
	return s.values[key]
}

// WithScope attaches the scope to the context.
func WithScope(ctx context.Context, sc *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

// FromContext extracts the scope, or nil outside any request.
func FromContext(ctx context.Context) *Scope {
	sc, _ := ctx.Value(scopeKey{}).(*Scope)
	return sc
}

// ActorFromContext returns the current actor, or nil when the context carries
// no authenticated scope. Background jobs see nil here.
func ActorFromContext(ctx context.Context) *Actor {
	if sc := FromContext(ctx); sc != nil {
		return sc.Actor
	}
	return nil
}
