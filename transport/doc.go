// Package transport provides the http.RoundTripper chain used by the
// telecare client.
//
// [Auth] attaches the stored access token and, on a 401, asks its
// [Refresher] for a new token and replays the request exactly once. The
// replay carries a retried marker in its context and goes straight to the
// base transport, so a second 401 is returned to the caller unchanged.
// Requests whose context was built with [WithoutRetry] never trigger a
// refresh.
//
// [RequestID], [Breaker], [RateLimit] and [Timing] are independent wrappers
// that can be stacked beneath Auth.
package transport
