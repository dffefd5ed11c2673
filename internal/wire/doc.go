// Package wire decodes backend payloads into tagged variants and rejects
// malformed bodies with a typed [ParseError] instead of reading absent fields.
//
// Backends wrap bodies either directly or under a "data" envelope; both are
// accepted. Field-name fallbacks (id/_id, roles/role, tempToken/setupToken)
// are resolved here so callers see one shape.
package wire
