package logging

import (
	"log/slog"
)

// WithQuery creates a logger with query context.
// Use this to automatically include the query id in all logs of one execution.
//
// Example:
//
//	log := logging.WithQuery(ctx.QueryID())
//	log.Info("execution started")
func WithQuery(queryID string) *slog.Logger {
	return GetLogger().With("query_id", queryID)
}

// WithNode creates a logger with plan node context.
//
// Example:
//
//	log := logging.WithNode(queryID, op.NodeID(), op.Kind().String())
//	log.Debug("batch probed", "rows", n)
func WithNode(queryID string, nodeID int, kind string) *slog.Logger {
	return GetLogger().With("query_id", queryID, "node_id", nodeID, "operator", kind)
}

// WithCache creates a logger with cache context.
//
// Example:
//
//	log := logging.WithCache("product", "redis")
//	log.Debug("cache lookup", "keys", len(keys), "hits", hits)
func WithCache(cacheName, provider string) *slog.Logger {
	return GetLogger().With("cache", cacheName, "provider", provider)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("parallel")
//	log.Info("pool started", "workers", 4)
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("operation failed", "operation", "probe")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
