// Package telecare is the client side of a telehealth platform: it
// authenticates users against the REST backend, walks them through
// multi-factor verification and enrollment, keeps the credential pair in a
// [tokenstore.Store], and hands out an [http.Client] that refreshes an
// expired access token once and replays the request.
//
// A [Session] is built with [New] and is safe for concurrent use. Its state
// moves through the phases anonymous, authenticating, mfa-required,
// mfa-setup-pending, authenticated and error. Every transition goes through
// a single reducer, and every transition that changes the tokens writes the
// store and the in-memory state together.
//
// Presentation is external. Callers observe the session by subscribing to
// state changes, by receiving routing intents through a [Navigator], and by
// consuming notifications through a [NotificationSink].
//
// # What this package must NOT do
//
//   - Verify token signatures; the backend is the authority.
//   - Interpret consultation or prescription content.
//   - Retry a request more than once after a 401.
package telecare
