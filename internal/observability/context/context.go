package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type jobKey struct{}

// JobInfo identifies the background job a context belongs to.
type JobInfo struct {
	ID   string
	Name string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithJob(ctx context.Context, info JobInfo) context.Context {
	return context.WithValue(ctx, jobKey{}, info)
}

func JobFromContext(ctx context.Context) (JobInfo, bool) {
	if ctx == nil {
		return JobInfo{}, false
	}
	info, ok := ctx.Value(jobKey{}).(JobInfo)
	return info, ok
}
