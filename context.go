package claimsx

import "context"

type callerKey struct{}

// Caller is the authenticated caller stored during request handling.
type Caller struct {
	Identity  Identity
	DevBypass bool
}

// HasRole reports whether the caller's embedded claims allow role.
func (c Caller) HasRole(role string) bool {
	return HasUserRole(role, c.Identity)
}

// BindCaller stores the caller inside the context for downstream consumers.
func BindCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext retrieves a caller previously stored in the context.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	value := ctx.Value(callerKey{})
	if value == nil {
		return Caller{}, false
	}
	caller, ok := value.(Caller)
	return caller, ok
}
