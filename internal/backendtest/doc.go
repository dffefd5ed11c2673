// Package backendtest is an in-process telehealth backend used by tests,
// the fake-backend example and the CLI's own tests. It implements the auth,
// consultation and prescription endpoints with in-memory state, mints real
// HS256 JWTs, records every call, and can be told to fail specific routes.
package backendtest
