// Package stores provides the Redis-backed token store behind magiccode's
// RedisStorage backend.
//
// # Design
//
// Each token is persisted as a versioned binary envelope (version, expiry in unix
// milliseconds, JSON user payload) under prefix:code with a Redis TTL matching the
// remaining lifetime. Consume runs a WATCH/MULTI optimistic transaction so that the
// caller's acceptance check and the delete are atomic with respect to concurrent
// consumers, retrying on contention.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for outstanding codes. It does
// NOT generate codes, compare identities, or make authentication decisions; those
// responsibilities belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import magiccode or any sibling internal package.
//   - Log or expose stored user payloads.
package stores
