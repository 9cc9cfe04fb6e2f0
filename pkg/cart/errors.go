package cart

import "errors"

var (
	// ErrItemNotFound indicates the cart item ID is not in the local mirror.
	ErrItemNotFound = errors.New("cart.item_not_found")

	// ErrClosed indicates the controller has been shut down.
	ErrClosed = errors.New("cart.closed")
)
