// Package magiccode issues and verifies short-lived, single-use numeric "magic codes"
// that authenticate a user in place of a password.
//
// A caller asks the [Engine] to issue a code for a candidate user record: the engine
// draws a cryptographically random code, hands it to a delivery hook (e-mail, SMS, ...)
// and, only when delivery succeeded, persists a [Token] keyed by the code. A later
// request presents the code plus an identity field; the engine resolves both from an
// ordered list of input [Source] values, validates the stored token, deletes it and
// delegates to a verification hook that produces the authenticated principal.
//
// Engine methods are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// magiccode is the public surface. It exposes [Engine], [Builder], [Config], the
// [Storage] contract and its two built-in backends, [Lookup], and the typed [Error].
// Flow orchestration, Redis encoding, audit dispatch and code generation live under
// internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Log. Observability leaves the engine only through the opt-in audit sink and
//     metrics snapshot.
//   - Own the lifecycle of the configured storage backend.
//   - Retry failed operations; every failure surfaces to the caller as an [*Error] or
//     the verification hook's own error.
//
// # Consumption guarantee
//
// The base Get → validate → Delete sequence is not atomic: two concurrent verifications
// of the same code can both pass validation. Backends that implement [Consumer]
// (both [MemoryStorage] and [RedisStorage] do) perform validation and deletion as one
// atomic step and the engine uses it automatically.
package magiccode
