package wishlist

import "strings"

// noOption is the canonical placeholder for an absent variant option.
const noOption = "NONE"

// Key identifies a wishlist entry by its variant triple. Comparison is
// case-insensitive and an absent option equals the explicit placeholder, so
// "red"/"Red" and ""/"NONE" all land on the same entry.
type Key struct {
	ProductID int64
	Color     string
	Size      string
}

// normalize returns the canonical form used for identity.
func (k Key) normalize() Key {
	return Key{
		ProductID: k.ProductID,
		Color:     normalizeOption(k.Color),
		Size:      normalizeOption(k.Size),
	}
}

func normalizeOption(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return noOption
	}
	return strings.ToUpper(s)
}

// Item is one wishlist entry. ColorName is the display name of the color
// option; optimistic marks a locally seeded entry awaiting backend
// confirmation.
type Item struct {
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Color     string  `json:"color"`
	ColorName string  `json:"colorName"`
	Size      string  `json:"size"`

	optimistic bool
}

// Key returns the item's normalized identity.
func (it Item) Key() Key {
	return Key{ProductID: it.ProductID, Color: it.Color, Size: it.Size}.normalize()
}

// Optimistic reports whether the entry is a local seed not yet confirmed by
// the backend.
func (it Item) Optimistic() bool {
	return it.optimistic
}
