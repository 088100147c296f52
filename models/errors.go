package models

import "errors"

var (
	ErrNotFound                 = errors.New("record not found")
	ErrPaymentMethodUnavailable = errors.New("payment method is not available")
	ErrProductNotFound          = errors.New("product not found")
	ErrProductUnavailable       = errors.New("product is not available")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInvalidStatus            = errors.New("invalid order status")
	ErrAdminUndeletable         = errors.New("admin users cannot be deleted")
	ErrForbidden                = errors.New("forbidden")
)
