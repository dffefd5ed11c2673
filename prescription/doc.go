// Package prescription backs the prescription-authoring workspace: drafts
// attached to a consultation, edits, signing, and per-patient history.
//
// Only structural checks happen here (identifiers present, at least one
// medication on a draft). Dosage and interaction rules belong to the
// backend.
package prescription
