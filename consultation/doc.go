// Package consultation is a thin client for the consultation endpoints of
// the telehealth backend. It validates required identifiers and otherwise
// forwards requests unchanged; lifecycle rules are enforced server side.
package consultation
