// Package main provides the entry point for rxhttp-server.
//
// rxhttp-server runs the reactive HTTP/1.x server with a small demo
// service:
//
//   - GET /          greeting
//   - GET /health    liveness check
//   - POST /echo     streams the request body back
//   - GET /delay     answers after ?ms= milliseconds, off the I/O path
//
// Usage:
//
//	rxhttp-server serve --config /etc/rxhttp/config.yaml
//	rxhttp-server version
//
// Configuration comes from the file, RXHTTP_ environment variables and
// flags, in increasing priority.
package main
