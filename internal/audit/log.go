package audit

import (
	"context"
	"errors"
	"maps"
	"strings"

	"github.com/sirupsen/logrus"

	"tallybook.io/internal/auth"
	"tallybook.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and acting user.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	data := logrus.Fields{
		"type":   "audit",
		"event":  event,
		"fields": maps.Clone(fields),
	}
	if fields == nil {
		data["fields"] = map[string]any{}
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		data["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		data["user_id"] = userID
	}
	if p, ok := auth.PayloadFromContext(ctx); ok && p.Role != "" {
		data["role"] = string(p.Role)
	}
	obs.FromContext(ctx).WithFields(data).Info("audit")
	return nil
}
