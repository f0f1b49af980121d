// Package internal contains helper utilities that are intentionally private to magiccode,
// most notably secure code generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for the issue and verify operations
//   - stores: Redis-backed token persistence
//
// # What this package must NOT do
//
//   - Export types that appear in the public magiccode API.
//   - Be imported by any package outside the magiccode module.
package internal
