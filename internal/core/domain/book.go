package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Book is the catalog row the order core reads and whose stock it decrements.
type Book struct {
	ID              int64
	Title           string
	Price           decimal.Decimal
	StockQuantity   int
	PublicationDate *time.Time
}

// MaxStockQuantity bounds stock counters and line quantities to the INT
// range of the stock_quantity column.
const MaxStockQuantity = math.MaxInt32

// Role names known to the identity store.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// DefaultRoles are seeded once at process start.
var DefaultRoles = []Role{RoleCustomer, RoleAdmin}
