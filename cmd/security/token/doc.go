// Package token provides refresh-token digests for server-side storage.
//
// A Hasher produces a stable 64-char hex digest:
// - HMAC-SHA256(token, key) when a key is configured (production).
// - SHA-256(token) otherwise (development).
//
// Environment:
// - AVA_TOKEN_HMAC_KEY: when set, enables HMAC mode.
//
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback). NewHasherFromEnv does both.
package token
