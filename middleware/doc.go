// Package middleware adapts magiccode.Engine to net/http.
//
// # Handlers
//
//   - [Handler] runs one action against the engine and renders the outcome.
//   - [Login], [Register] issue codes; [Callback] verifies them and hands the
//     result to the next handler through the request context.
//
// [RequestFromHTTP] builds the three candidate input sources in precedence
// order: decoded body (JSON or form), query string, then chi URL parameters.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// code lifecycle logic itself; every decision is delegated to Engine.Authenticate.
//
// # What this package must NOT do
//
//   - Access the storage backend.
//   - Reveal why a code was rejected beyond the engine's error label.
package middleware
