package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		to      OrderStatus
		wantErr bool
	}{
		{OrderConfirmed, OrderProcessing, false},
		{OrderConfirmed, OrderCancelled, false},
		{OrderConfirmed, OrderShipped, true},
		{OrderProcessing, OrderPreparing, false},
		{OrderPreparing, OrderShipped, false},
		{OrderShipped, OrderDelivered, false},
		{OrderShipped, OrderCancelled, true},
		{OrderDelivered, OrderCancelled, true},
		{OrderCancelled, OrderProcessing, true},
	}
	for _, tt := range tests {
		o := &Order{Status: tt.from}
		err := o.CanTransitionTo(tt.to)
		if tt.wantErr {
			assert.Error(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		}
		assert.Equal(t, tt.from, o.Status)
	}
}

// The stored total must match the line totals at creation and stays put even
// if product prices move later; LineTotal is computed purely from the
// snapshotted items.
func TestOrderLineTotal(t *testing.T) {
	o := &Order{
		Items: []OrderItem{
			{Quantity: 1, UnitPrice: 2500},
			{Quantity: 3, UnitPrice: 1200},
		},
		TotalAmount: 6100,
	}
	assert.Equal(t, o.TotalAmount, o.LineTotal())
}
