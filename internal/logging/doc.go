// Package logging provides the leveled logger used across the media
// ingestion service.
//
// It supports the following log levels:
//   - DEBUG: Verbose pipeline tracing (every stage, every external command)
//   - INFO: Upload outcomes and startup configuration
//   - WARN: Recoverable problems such as failed cleanup of a scratch file
//   - ERROR: Encoder failures and their captured diagnostic output
//   - FATAL: Startup errors that terminate the process
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true as a shortcut. Components obtain a prefixed logger with For.
package logging
