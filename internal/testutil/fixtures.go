package testutil

import (
	"testing"

	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/stretchr/testify/require"
)

// OrderFixture returns a two-item order totalling $64.49.
func OrderFixture(orderID string) *insurance.OrderInput {
	return &insurance.OrderInput{
		OrderID: orderID,
		Buyer:   insurance.Buyer{Name: "Ada Lovelace", Email: "ada@example.com"},
		Items: []insurance.OrderItem{
			{SKU: "SKU-1", Name: "Headphones", Quantity: 1, UnitPriceCents: 4999, LineTotalCents: 4999},
			{SKU: "SKU-2", Name: "Cable", Quantity: 2, UnitPriceCents: 725, LineTotalCents: 1450},
		},
		TotalCents: 6449,
	}
}

// RecordWithPlan returns a pending record with a plan selected.
func RecordWithPlan(t *testing.T, orderID, planID string) *insurance.Record {
	t.Helper()
	rec := insurance.NewRecord(orderID)
	require.NoError(t, rec.SelectPlan(planID, 599))
	return rec
}
