package cart

// Item is one cart line as the backend reports it, mirrored locally and
// keyed by CartItemID. AvailableStock of zero means the bound is unknown
// and the default ceiling applies.
type Item struct {
	CartItemID     int64   `json:"cartItemId"`
	ProductID      int64   `json:"productId"`
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	Size           string  `json:"size"`
	Price          float64 `json:"price"`
	Quantity       int     `json:"quantity"`
	AvailableStock int     `json:"availableStock"`
}

// AddInput describes a product variant to place in the cart.
type AddInput struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

// OptionKey identifies cart lines by their variant triple, used for
// post-order trimming.
type OptionKey struct {
	ProductID int64  `json:"productId"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

func (k OptionKey) matches(it Item) bool {
	return k.ProductID == it.ProductID && k.Color == it.Color && k.Size == it.Size
}

// clampQuantity bounds a requested quantity to [1, stock], falling back to
// maxQty when the stock figure is unknown.
func clampQuantity(qty, stock, maxQty int) int {
	upper := maxQty
	if stock > 0 {
		upper = stock
	}
	if qty < 1 {
		return 1
	}
	if qty > upper {
		return upper
	}
	return qty
}
