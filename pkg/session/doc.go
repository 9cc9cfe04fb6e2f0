// Package session is the storefront client's session state machine.
//
// A Controller sits between the auth store, the refresh coordinator and the
// HTTP transport. Bootstrap restores a persisted session optimistically and
// validates it in the background; Login and Logout mutate the store and
// announce the transition; the interceptor's 401 path funnels into
// HandleUnauthorized, which renews through the coordinator or degrades to a
// clean logout. All transitions are observable through a payloadless
// broadcast, so collection controllers and UI reconcile on any change
// without coupling to its cause.
package session
