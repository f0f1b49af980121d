// Package flows contains pure-function orchestrators for the two Engine operations:
// issuing a code ([RunIssue]) and verifying one ([RunVerify]).
//
// Each flow function accepts a typed dependency struct and returns results without
// side-effects beyond those dependencies. Storage, delivery, callbacks, metrics and
// audit all arrive as function fields, so flows can be exercised with plain closures.
//
// # Ordering contract
//
// RunIssue persists only after delivery succeeded. RunVerify checks for missing
// input before any storage call, validates before deleting, and deletes before
// invoking the verification callback.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import magiccode (to avoid import cycles).
//   - Perform I/O directly: all I/O is mediated through dependency functions.
package flows
