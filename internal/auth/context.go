package auth

import "context"

type contextKey struct{}

// Method records how a request was authenticated.
type Method string

const (
	MethodSession Method = "session"
	MethodToken   Method = "token"
)

type AuthContext struct {
	UserID    string
	Email     string
	SessionID int64
	Method    Method
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "streakforge_session"
