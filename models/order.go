package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusInTransit OrderStatus = "in_transit" // legacy "en camino"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = map[OrderStatus]bool{
	OrderStatusPending:   true,
	OrderStatusConfirmed: true,
	OrderStatusPreparing: true,
	OrderStatusReady:     true,
	OrderStatusInTransit: true,
	OrderStatusDelivered: true,
	OrderStatusCancelled: true,
}

func (s OrderStatus) Valid() bool {
	return orderStatuses[s]
}

// PaymentPhaseStatuses are the states the payment gateway is allowed to move
// an order between. Once an admin has started fulfilment the gateway no
// longer has a say.
var PaymentPhaseStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusCancelled,
}

// StatusFromGateway maps a remote payment status onto an order status.
func StatusFromGateway(remote string) OrderStatus {
	switch remote {
	case "approved":
		return OrderStatusConfirmed
	case "rejected":
		return OrderStatusCancelled
	default:
		return OrderStatusPending
	}
}

type Order struct {
	ID                  int               `json:"id"`
	UserID              int               `json:"user_id"`
	Total               decimal.Decimal   `json:"total"`
	Status              OrderStatus       `json:"status"`
	PaymentMethodID     *int              `json:"payment_method_id"`
	PaymentMethodName   string            `json:"payment_method"`
	PaymentMethodType   PaymentMethodType `json:"payment_method_type"`
	DeliveryAddress     string            `json:"delivery_address"`
	Phone               string            `json:"phone"`
	Notes               string            `json:"notes"`
	GatewayPaymentID    *string           `json:"gateway_payment_id,omitempty"`
	GatewayPreferenceID *string           `json:"gateway_preference_id,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	User                *UserSummary      `json:"user,omitempty"`
	Lines               []OrderLine       `json:"lines"`
}

type OrderLine struct {
	ID          int             `json:"id"`
	OrderID     int             `json:"order_id"`
	ProductID   *int            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Notes       string          `json:"notes"`
}

// PlaceOrderRequest keeps the field names the storefront checkout posts.
type PlaceOrderRequest struct {
	Total           *decimal.Decimal   `json:"total" binding:"required"`
	DeliveryAddress string             `json:"direccion_entrega" binding:"max=255"`
	Phone           string             `json:"telefono" binding:"max=30"`
	Notes           string             `json:"notas"`
	PaymentMethod   string             `json:"metodo_pago" binding:"required"`
	Products        []OrderLineRequest `json:"productos" binding:"required,min=1,dive"`
}

type OrderLineRequest struct {
	ProductID int    `json:"producto_id" binding:"required,gt=0"`
	Quantity  int    `json:"cantidad" binding:"required,min=1"`
	Notes     string `json:"notas"`
}

type PlaceOrderResponse struct {
	Message       string `json:"message"`
	Order         *Order `json:"pedido"`
	PaymentMethod string `json:"metodo_pago"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"estado" binding:"required"`
}

const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventPaymentUpdated     = "payment_updated"
)

type OrderEvent struct {
	EventType     string            `json:"event_type"`
	OrderID       int               `json:"order_id"`
	UserID        int               `json:"user_id"`
	Status        OrderStatus       `json:"status"`
	Total         decimal.Decimal   `json:"total"`
	PaymentMethod string            `json:"payment_method"`
	PaymentType   PaymentMethodType `json:"payment_type"`
	PaymentID     string            `json:"payment_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// Event builds an event snapshot of the order.
func (o *Order) Event(eventType string) OrderEvent {
	e := OrderEvent{
		EventType:     eventType,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethodName,
		PaymentType:   o.PaymentMethodType,
		OccurredAt:    time.Now().UTC(),
	}
	if o.GatewayPaymentID != nil {
		e.PaymentID = *o.GatewayPaymentID
	}
	return e
}
