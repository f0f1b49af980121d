// Package receipt signs and verifies issuance receipts: short HS256 JWTs that
// attest a code was sent to an identity for a given action. A receipt never
// substitutes for the code itself.
package receipt
