// Package logging configures slog output for the daemon and CLI.
//
// Two handler formats are supported: a compact console format
// (timestamp LEVEL component: message key=value ...) and standard JSON.
// Helpers expose standardized field keys (tenant_id, clip_id, stage,
// queue) and derive logger attributes from context values stamped by the
// services package.
package logging
