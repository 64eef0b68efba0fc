// Package logger builds the process-wide slog logger and names the
// attributes that connection and exchange logs share.
//
// Loggers from New share one level, so a configuration reload can change
// verbosity without rebuilding handlers. Credentials are masked by the
// handler before anything is written: values of authorization, cookie and
// token-like keys, and any string that starts with an HTTP auth scheme.
package logger
