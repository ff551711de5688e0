package services

import "context"

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	clipIDKey    contextKey = "clip_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithTenantID annotates context with the tenant identifier.
func WithTenantID(ctx context.Context, tenant string) context.Context {
	if tenant == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantIDKey, tenant)
}

// TenantIDFromContext extracts the tenant identifier if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(tenantIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithClipID annotates context with the clip identifier.
func WithClipID(ctx context.Context, clip string) context.Context {
	if clip == "" {
		return ctx
	}
	return context.WithValue(ctx, clipIDKey, clip)
}

// ClipIDFromContext extracts the clip identifier if present.
func ClipIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(clipIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
