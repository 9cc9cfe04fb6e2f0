// Package cart mirrors the server-side shopping cart optimistically.
//
// The mirror is the UI's source of truth between reconciliations: quantity
// edits apply locally at once and travel to the backend only after a per-line
// quiet period, with rapid edits collapsing into a single request carrying
// the final value. Removals apply locally first and roll back from a
// snapshot when the backend disagrees. Every mirror change wakes
// subscribers on a payloadless broadcast.
package cart
