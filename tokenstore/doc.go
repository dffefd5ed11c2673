// Package tokenstore persists the two bearer credentials a telecare session
// owns: the short-lived access token and the long-lived refresh token.
//
// # Layout
//
// Every implementation stores exactly two string values under the keys
// [AccessKey] ("token") and [RefreshKey] ("refreshToken"). An absent value is
// reported as the empty string, never as an error.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT interpret tokens, decide
// when to refresh, or coordinate writers; the session and the auth transport
// both write through a [Store] and the last writer wins.
//
// # What this package must NOT do
//
//   - Import telecare, transport, or jwt (no upward imports).
//   - Log or emit notifications.
//   - Hold a lock across store operations spanning more than one call.
package tokenstore
