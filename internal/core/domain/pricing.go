package domain

import "github.com/shopspring/decimal"

// PriceSnapshot returns the unit price locked into an order line for the
// given quantity. The book must have been read inside the reservation
// transaction. There is no volume pricing, so the quantity does not change
// the unit price.
func PriceSnapshot(book Book, _ int) decimal.Decimal {
	return book.Price
}
