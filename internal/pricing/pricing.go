// Package pricing computes unit prices, line totals and line profits for
// sale lines. It is pure: no storage access, no rounding. Display formatting
// is left to callers.
package pricing

import "tokoserba/backend/internal/domain"

type Quote struct {
	UnitPrice  float64
	LineTotal  float64
	LineProfit float64
}

// UnitPrice selects the price list for the given sale type: wholesale sales
// use the wholesale price, everything else the retail price.
func UnitPrice(product domain.Product, saleType domain.SaleType) float64 {
	if saleType == domain.SaleTypeWholesale {
		return product.WholesalePrice
	}
	return product.RetailPrice
}

// QuoteLine prices a single sale line. Quantity may be fractional: the
// sell-by-amount mode derives quantity as amount / unit price and the result
// flows through unchanged.
func QuoteLine(product domain.Product, saleType domain.SaleType, quantity float64) Quote {
	unit := UnitPrice(product, saleType)
	return Quote{
		UnitPrice:  unit,
		LineTotal:  unit * quantity,
		LineProfit: (unit - product.PurchasePrice) * quantity,
	}
}

// QuantityForAmount converts a target spend into a quantity at the given
// unit price. Returns 0 when the unit price is not positive.
func QuantityForAmount(amount float64, unitPrice float64) float64 {
	if unitPrice <= 0 {
		return 0
	}
	return amount / unitPrice
}
