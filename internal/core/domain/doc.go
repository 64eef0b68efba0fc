// Package domain defines the HTTP data model shared by the transport codec
// and the connection pipeline.
//
// Domain models are plain values without IO dependencies. This package
// contains:
//
//   - Version, Method, Status: protocol vocabulary
//   - Headers: ordered, case-insensitive header collection
//   - RequestMeta, ResponseMeta, Request, Response: message values
//   - PayloadChunk, Chunk, LastChunk: body items
//   - KeepAlive and transfer-encoding policy
//   - Errors: coded error definitions
package domain
