// Package refresh renews the session credential behind a single-flight
// gate.
//
// When several requests hit a 401 on the same expired credential, only the
// first caller performs network work; the rest join the in-flight attempt
// and observe the same outcome. A successful renewal updates the auth store
// in place (preserving the storage scope and any fields the response
// omitted), which in turn drives the session change broadcast. Exhausting
// every known endpoint variant resolves false without touching the store -
// the decision to clear the session belongs to the caller.
package refresh
