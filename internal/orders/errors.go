package orders

import "errors"

var (
	ErrUnknownOrder = errors.New("order not found")
	ErrSnapshot     = errors.New("order snapshot fetch failed")
)
