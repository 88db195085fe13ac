// Package auth provides authentication and authorisation for Foyer Core.
//
// It implements a 3-tier role model (host → guard → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Stateless JWT access tokens (HS256, signature-only validation)
//   - A Principal type resolved from claims for authorisation checks
//
// Hosts see only their own visits; guards and admins operate site-wide.
// The finer-grained visit authorisation rules (who may approve, who may
// check in) live with the visit lifecycle, not here.
package auth
