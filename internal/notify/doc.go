// Package notify delivers user-facing notifications raised by session
// operations.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON writer, zap, no-op).
//   - [Dispatcher] relays events inline or through a bounded buffer.
//   - [Event] is a single success, error or info message.
//
// The package does not decide which events to raise; the session does. It
// must not import the root package.
package notify
