package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	RequestIDKey   = "request_id"
	TenantIDKey    = "tenant_id"
	VendorKey      = "vendor"
	BatchIDKey     = "batch_id"
)

// orderedKeys fixes the position of context fields in every log line.
var orderedKeys = []string{
	TraceIDKey,
	RequestIDKey,
	MessageIDKey,
	ServiceNameKey,
	TenantIDKey,
	VendorKey,
	BatchIDKey,
}

func with(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, contextKey(key), value)
}

func get(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return with(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, RequestIDKey, requestID)
}

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return with(ctx, TenantIDKey, tenantID)
}

func WithVendor(ctx context.Context, vendor string) context.Context {
	return with(ctx, VendorKey, vendor)
}

func WithBatchID(ctx context.Context, batchID string) context.Context {
	return with(ctx, BatchIDKey, batchID)
}

func GetTraceID(ctx context.Context) string {
	return get(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return get(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return get(ctx, ServiceNameKey)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func GetTenantID(ctx context.Context) string {
	return get(ctx, TenantIDKey)
}

func GetVendor(ctx context.Context) string {
	return get(ctx, VendorKey)
}

func GetBatchID(ctx context.Context) string {
	return get(ctx, BatchIDKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, len(orderedKeys)*2)

	for _, key := range orderedKeys {
		if v := get(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
