package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrEmptyCart = errors.New("cart is empty")

// Draft is the cart as handed to checkout.
type Draft struct {
	VendorID string          `json:"vendorId"`
	Lines    []Line          `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
