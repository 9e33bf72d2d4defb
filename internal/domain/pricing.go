package domain

// LineTotal returns the monetary total for a single order line.
func LineTotal(item OrderItem) int64 {
	if item.Quantity <= 0 || item.UnitPrice <= 0 {
		return 0
	}
	return item.UnitPrice * int64(item.Quantity)
}

// OrderTotal sums the line totals for the provided order items. Unit prices
// are snapshots taken when the order was placed, so later catalog price
// changes never alter an existing order total.
func OrderTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += LineTotal(item)
	}
	return total
}
