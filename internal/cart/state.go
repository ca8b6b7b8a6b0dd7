package cart

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Item is what a menu surface hands to AddItem.
type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	VendorID string          `json:"vendorId"`
}

type Line struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Qty      int             `json:"qty"`
	VendorID string          `json:"vendorId"`
}

func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// State is the whole cart. VendorID == "" means no vendor lock.
type State struct {
	Lines      []Line `json:"lines"`
	VendorID   string `json:"vendorId"`
	DrawerOpen bool   `json:"drawerOpen"`
}

func (s State) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

func (s State) TotalQty() int {
	n := 0
	for _, l := range s.Lines {
		n += l.Qty
	}
	return n
}

func (s State) Empty() bool { return len(s.Lines) == 0 }

func (s State) Clone() State {
	s.Lines = slices.Clone(s.Lines)
	return s
}

func (s State) index(id string) int {
	return slices.IndexFunc(s.Lines, func(l Line) bool { return l.ID == id })
}

func validItem(it Item) bool {
	return strings.TrimSpace(it.ID) != "" &&
		strings.TrimSpace(it.VendorID) != "" &&
		!it.Price.IsNegative()
}

// Add inserts it or changes the quantity of its line by delta. An item from a
// vendor other than the locked one replaces the whole cart. A new line gets
// at least 1; an existing line reaching 0 is removed. Invalid items leave the
// state unchanged.
func Add(s State, it Item, delta int) State {
	if !validItem(it) {
		return s
	}
	if !s.Empty() && it.VendorID == s.VendorID {
		if i := s.index(it.ID); i >= 0 {
			if delta < 1 {
				return SetQuantity(s, it.ID, s.Lines[i].Qty+delta)
			}
			s = s.Clone()
			s.Lines[i].Qty += delta
			s.Lines[i].Name = it.Name
			s.Lines[i].Price = it.Price
			s.DrawerOpen = true
			return s
		}
	}

	s = s.Clone()
	if s.Empty() {
		s.VendorID = it.VendorID
	} else if it.VendorID != s.VendorID {
		// смена ресторана: корзина сбрасывается без подтверждения
		s.Lines = nil
		s.VendorID = it.VendorID
	}
	s.Lines = append(s.Lines, Line{
		ID:       it.ID,
		Name:     it.Name,
		Price:    it.Price,
		Qty:      max(1, delta),
		VendorID: it.VendorID,
	})
	s.DrawerOpen = true
	return s
}

// SetQuantity clamps qty at zero; zero removes the line. Unknown ids are a
// no-op.
func SetQuantity(s State, id string, qty int) State {
	i := s.index(id)
	if i < 0 {
		return s
	}
	if qty <= 0 {
		return Remove(s, id)
	}
	s = s.Clone()
	s.Lines[i].Qty = qty
	return s
}

func Remove(s State, id string) State {
	i := s.index(id)
	if i < 0 {
		return s
	}
	s = s.Clone()
	s.Lines = slices.Delete(s.Lines, i, i+1)
	return s
}

// Clear empties the cart and releases the vendor lock.
func Clear(s State) State {
	return State{DrawerOpen: s.DrawerOpen}
}

// sanitize drops lines that cannot exist in a valid cart, e.g. after a
// foreign context wrote something odd.
func sanitize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.ID) == "" || l.Qty < 1 || l.Price.IsNegative() {
			continue
		}
		out = append(out, l)
	}
	return out
}
