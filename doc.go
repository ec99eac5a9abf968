// Package membership provides the identity, token and audit core of a
// membership registry: credential hashing, signed session tokens, the
// uniqueness invariant over the member number and national code, role based
// access checks, and an append-only audit trail with CSV and workbook export.
//
// Identity registry:
//   - Members are identified by two independent natural keys, the member
//     number and the national code. Both stay globally unique. The registry
//     runs a single CheckUniqueness primitive before every write and the
//     storage layer carries UNIQUE constraints as the authoritative backstop,
//     so a lost race still surfaces as ErrConflict.
//   - New members get their member number as initial secret.
//
// Tokens:
//   - TokenService signs HS256 tokens with a key sourced from Config. Tokens
//     are stateless; there is no revocation. Authorization always re-reads the
//     live identity, the role snapshot in the claims is informational.
//
// Audit pipeline:
//   - AuditPipeline.Append is best-effort. Storage failures are logged and
//     counted but never fail the operation that triggered them. Use Record
//     when a caller needs the strict result.
package membership
