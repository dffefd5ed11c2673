// Package rest is the JSON request helper shared by the session and the
// consultation and prescription clients. It resolves paths against a base
// URL, encodes request bodies, bounds response reads, and maps non-2xx
// statuses to [*APIError].
package rest
