package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMethodType_InitialStatus(t *testing.T) {
	assert.Equal(t, OrderStatusConfirmed, PaymentTypeCash.InitialStatus())
	assert.Equal(t, OrderStatusPending, PaymentTypeDigital.InitialStatus())
	assert.Equal(t, OrderStatusPending, PaymentTypeOnline.InitialStatus())
}

func TestPaymentMethodType_ConfirmationMessage(t *testing.T) {
	assert.Equal(t, "Order created successfully. Please send the proof of payment to the business WhatsApp.",
		PaymentTypeDigital.ConfirmationMessage())
	assert.Equal(t, "Order created successfully. You will pay on delivery.",
		PaymentTypeCash.ConfirmationMessage())
	assert.Equal(t, "Order created successfully.", PaymentTypeOnline.ConfirmationMessage())
}

func TestStatusFromGateway(t *testing.T) {
	tests := map[string]OrderStatus{
		"approved":     OrderStatusConfirmed,
		"rejected":     OrderStatusCancelled,
		"in_process":   OrderStatusPending,
		"pending":      OrderStatusPending,
		"":             OrderStatusPending,
		"charged_back": OrderStatusPending,
	}
	for remote, want := range tests {
		assert.Equal(t, want, StatusFromGateway(remote), remote)
	}
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, OrderStatusInTransit.Valid())
	assert.True(t, OrderStatusDelivered.Valid())
	assert.False(t, OrderStatus("en_camino").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestLineSubtotal(t *testing.T) {
	crepe := decimal.RequireFromString("12.00")
	pollo := decimal.RequireFromString("15.00")

	total := LineSubtotal(2, crepe).Add(LineSubtotal(1, pollo))
	assert.Equal(t, "39.00", total.StringFixed(2))

	// no binary float drift
	assert.Equal(t, "0.30", LineSubtotal(3, decimal.RequireFromString("0.10")).StringFixed(2))
}

func TestOrderJSONAmountsAreNumbers(t *testing.T) {
	o := Order{ID: 1, Total: decimal.RequireFromString("39.00"), Status: OrderStatusConfirmed}
	data, err := json.Marshal(o)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(39), raw["total"])
}

func TestOrderEvent(t *testing.T) {
	pid := "987"
	o := Order{
		ID:                3,
		UserID:            8,
		Total:             decimal.NewFromInt(15),
		Status:            OrderStatusPending,
		PaymentMethodName: "Mercado Pago",
		PaymentMethodType: PaymentTypeOnline,
		GatewayPaymentID:  &pid,
	}

	e := o.Event(EventPaymentUpdated)
	assert.Equal(t, EventPaymentUpdated, e.EventType)
	assert.Equal(t, 3, e.OrderID)
	assert.Equal(t, 8, e.UserID)
	assert.Equal(t, "987", e.PaymentID)
	assert.Equal(t, PaymentTypeOnline, e.PaymentType)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestCart(t *testing.T) {
	c := &Cart{UserID: 1}
	c.Add(CartItem{ProductID: 2, Quantity: 1})
	c.Add(CartItem{ProductID: 3, Quantity: 2})
	c.Add(CartItem{ProductID: 2, Quantity: 2, Notes: "extra queso"})

	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "extra queso", c.Items[0].Notes)
	assert.Equal(t, 5, c.ItemCount())

	c.SetQuantity(3, 4)
	assert.Equal(t, 7, c.ItemCount())

	// unknown products are ignored
	c.SetQuantity(99, 1)
	assert.Len(t, c.Items, 2)

	c.SetQuantity(2, 0)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].ProductID)

	c.Remove(3)
	assert.Empty(t, c.Items)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleCustomer.Valid())
	assert.False(t, Role("cliente").Valid())
}
