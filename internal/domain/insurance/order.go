package insurance

import "context"

// Buyer identifies the purchaser on a policy request.
type Buyer struct {
	Name  string
	Email string
}

// OrderItem is one line item of the insured order.
type OrderItem struct {
	SKU            string
	Name           string
	Quantity       int
	UnitPriceCents int64
	LineTotalCents int64
}

// OrderInput is the order data sent to the insurance provider when buying a
// policy. The selected plan comes from the Record, not from here; the host
// order store knows nothing about insurance.
type OrderInput struct {
	OrderID    string
	Buyer      Buyer
	Items      []OrderItem
	TotalCents int64
}

// OrderDataProvider reads order data from the host order store.
type OrderDataProvider interface {
	GetOrderInsuranceInput(ctx context.Context, orderID string) (*OrderInput, error)
}
