package utils

import "context"

type contextKey string

const (
	bearerTokenKey contextKey = "bearer_token"
	requestIDKey   contextKey = "request_id"
)

// WithBearerToken attaches the caller's access token so outbound calls can
// act on the student's behalf
func WithBearerToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerTokenKey, token)
}

// BearerToken returns the token set by WithBearerToken
func BearerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenKey).(string)
	return token, ok && token != ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}
