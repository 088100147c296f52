package models

import "time"

type PaymentMethodType string

const (
	PaymentTypeDigital PaymentMethodType = "digital"
	PaymentTypeCash    PaymentMethodType = "cash"
	PaymentTypeOnline  PaymentMethodType = "online"
)

type PaymentMethod struct {
	ID           int               `json:"id"`
	Name         string            `json:"name"`
	Type         PaymentMethodType `json:"type"`
	Active       bool              `json:"active"`
	Phone        string            `json:"phone"`
	AccountName  string            `json:"account_name"`
	QRImage      string            `json:"qr_image"`
	Instructions string            `json:"instructions"`
	DisplayOrder int               `json:"order"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type UpdatePaymentMethodRequest struct {
	Active       *bool   `json:"active"`
	Phone        *string `json:"phone" binding:"omitempty,max=20"`
	AccountName  *string `json:"account_name" binding:"omitempty,max=255"`
	QRImage      *string `json:"qr_image"`
	Instructions *string `json:"instructions"`
}

// InitialStatus is the status a new order starts in for this kind of payment.
// Cash is collected on delivery so nothing has to be proven up front.
func (t PaymentMethodType) InitialStatus() OrderStatus {
	if t == PaymentTypeCash {
		return OrderStatusConfirmed
	}
	return OrderStatusPending
}

// ConfirmationMessage is shown to the customer right after checkout.
func (t PaymentMethodType) ConfirmationMessage() string {
	msg := "Order created successfully."
	switch t {
	case PaymentTypeDigital:
		msg += " Please send the proof of payment to the business WhatsApp."
	case PaymentTypeCash:
		msg += " You will pay on delivery."
	}
	return msg
}
