package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// LiveLine is a cart line: a product reference whose price is refreshed from
// the catalog every time the cart is read.
type LiveLine struct {
	ItemID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	UnitPrice int64
}

// LineTotal is quantity × the stored unit price.
func (l LiveLine) LineTotal() int64 {
	return pricing.LineTotal(int64(l.Quantity), l.UnitPrice)
}

func linesFromItems(items []models.CartItem) []LiveLine {
	lines := make([]LiveLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, LiveLine{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return lines
}

func itemsFromLines(lines []LiveLine) []models.CartItem {
	items := make([]models.CartItem, 0, len(lines))
	for i, line := range lines {
		items = append(items, models.CartItem{
			ID:        line.ItemID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Position:  i,
		})
	}
	return items
}

// Subtotal sums the live lines at their stored prices.
func Subtotal(lines []LiveLine) int64 {
	pl := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		pl = append(pl, pricing.Line{Quantity: int64(l.Quantity), UnitPrice: l.UnitPrice})
	}
	return pricing.Subtotal(pl)
}

// Reconcile brings lines in line with the catalog. products holds the active
// products only, so a missing entry means the product is gone or deleted.
// Lines whose product vanished or sold out are dropped, quantities above stock
// are clamped, and stale prices refreshed. The bool reports whether anything changed.
func Reconcile(lines []LiveLine, products map[uuid.UUID]models.Product) ([]LiveLine, bool) {
	out := make([]LiveLine, 0, len(lines))
	changed := false
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			changed = true
			continue
		}
		if product.Stock < line.Quantity {
			if product.Stock <= 0 {
				changed = true
				continue
			}
			line.Quantity = product.Stock
			changed = true
		}
		if price := product.EffectivePrice(); price != line.UnitPrice {
			line.UnitPrice = price
			changed = true
		}
		out = append(out, line)
	}
	return out, changed
}
