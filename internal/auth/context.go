package auth

import "context"

type principalContextKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	IsStaff   bool   `json:"is_staff"`
	// Method is "jwt" or "legacy".
	Method string `json:"method"`
}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
