// Package logger provides a structured logging facility based on Zap.
//
// It offers a configured logger instance that supports different environments (development vs production)
// and carries correlation fields for both HTTP requests and bulk operations.
//
// # Correlation
//
// WithOperation attaches the op_id, kind and table of a bulk operation, so every step of
// one insert, update, upsert, delete or copy can be followed in the logs.
// WithRequestID attaches the request id stored by the Fiber request id middleware.
//
// # Configuration
//
// The package supports configuration for:
//   - Level: debug, info, warn, error
//   - Encoding: json (production) or console (development)
//
// # Usage
//
//	log, _ := logger.New(&logger.Config{Level: "info"})
//	log.Info("Server started")
//
//	l := logger.WithOperation(log, uuid.NewString(), "upsert", "users")
//	l.Error("Statement failed", zap.Error(err))
package logger
