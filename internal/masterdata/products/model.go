package products

import (
	"errors"
	"time"
)

// Product carries the catalogue facts the commerce core needs to price and
// cost a line. Prices and costs are int64 minor units per base unit.
type Product struct {
	ID               int64
	BusinessID       int64
	Code             string
	Name             string
	BaseUnit         string
	BasePricePence   int64
	DefaultCostPence int64
	VATRateBps       int64
	PromoBuyQty      int64
	PromoGetQty      int64
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Unit is a selling unit of a product with its conversion to the base unit.
type Unit struct {
	ProductID int64
	Name      string
	Factor    int64 // base units per one of this unit
}

var (
	// ErrProductNotFound indicates an unknown or inactive product.
	ErrProductNotFound = errors.New("products: not found")
	// ErrUnknownUnit indicates a selling unit not configured for the product.
	ErrUnknownUnit = errors.New("products: unknown unit")
)
