// Package httpserver serves HTTP/1.x exchanges over reactive streams.
//
// Every accepted connection first passes a ConnectionFilter. An admitted
// connection is then served by a pipeline that repeats one exchange at a
// time until the keep-alive decision ends it:
//
//   - Splice the transport's item stream into a Request and its body
//   - Call the Service, turning errors and panics into a 500 response
//   - Shape the response: version, Transfer-Encoding and Connection headers
//   - Write the response, then drain whatever is left of the request body
//   - Close the connection after a short grace delay if the exchange ends it
//
// Requests on a connection are never handled concurrently. A pipelined
// request is not read until the previous exchange has finished.
//
// ServerContext ties the acceptor, the connections, the service and the
// executor together and closes them in that order.
package httpserver
