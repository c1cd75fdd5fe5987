// Package actions holds the web actions served under /api/my/. An action
// receives the merged query and body arguments and returns a body, a status
// and optional headers, the same contract serverless web actions use.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Args are the merged query parameters and JSON body fields of a call.
type Args map[string]any

func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns the value of key as text. Non-string values are returned
// as their JSON encoding.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// Decode converts the value of key into v.
func (a Args) Decode(key string, v any) error {
	raw, err := json.Marshal(a[key])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Result is what an action returns. A string Body is sent as HTML, anything
// else as JSON. A zero StatusCode means 200, or 204 for an empty string.
type Result struct {
	StatusCode int
	Body       any
	Headers    map[string]string
}

func JSON(body any) Result { return Result{Body: body} }

func HTML(body string) Result { return Result{Body: body} }

// Error carries the HTTP status an action failure maps to.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func BadRequest(format string, args ...any) error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Unavailable(format string, args ...any) error {
	return &Error{Status: http.StatusServiceUnavailable, Message: fmt.Sprintf(format, args...)}
}

type Func func(ctx context.Context, args Args) (Result, error)

// Registry maps "package/name" to actions.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.actions))
	for n := range r.actions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type sessionKey struct{}

func WithSession(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sid)
}

// SessionID returns the caller's session, or "" outside a request.
func SessionID(ctx context.Context) string {
	sid, _ := ctx.Value(sessionKey{}).(string)
	return sid
}
