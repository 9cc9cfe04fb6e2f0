package authstore

import "errors"

var (
	// ErrNotFound indicates the backend holds no record.
	ErrNotFound = errors.New("authstore.not_found")

	// ErrNoClient indicates a redis backend was constructed without a client.
	ErrNoClient = errors.New("authstore.no_client")

	// ErrWatchUnsupported indicates the durable backend cannot observe external writes.
	ErrWatchUnsupported = errors.New("authstore.watch_unsupported")
)
