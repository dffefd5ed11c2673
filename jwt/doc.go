// Package jwt reads the claims of backend-issued access tokens on the client.
//
// The client never holds a verification key, so tokens are decoded without
// signature checks. The decoded claims are used for scheduling (when does the
// access token expire) and display (who is logged in), never for trust
// decisions; the backend remains the only authority.
//
// # What this package must NOT do
//
//   - Treat a decoded token as authenticated.
//   - Perform I/O.
//   - Import telecare, transport, or tokenstore.
package jwt
