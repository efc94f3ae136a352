// Package logging provides structured logging using uber/zap.
//
// Two modes are offered:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Operational logs go to stderr. The interception audit stream is a
// separate plain-text writer; Audit returns the named zap logger that
// optionally mirrors it as structured entries.
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.Info("Server starting", zap.String("port", "8000"))
//	env.WithAudit(logger.Audit())
package logging
