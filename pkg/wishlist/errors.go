package wishlist

import "errors"

// ErrClosed indicates the controller has been shut down.
var ErrClosed = errors.New("wishlist.closed")
