// Package wishlist mirrors the server-side wishlist optimistically.
//
// Entries are identified by a normalized variant triple (product, color,
// size), so casing and absent options never produce duplicates. A toggle
// seeds or trims the mirror immediately, reconciles with the backend, and
// rolls back from a snapshot on failure; repeated toggles for a variant
// whose request is still in flight are dropped, with the guard held briefly
// past resolution to swallow double-clicks.
package wishlist
