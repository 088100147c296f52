package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"crepes-svc/middleware"
	"crepes-svc/models"
	"crepes-svc/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const paymentMethodColumns = "id, name, type, active, phone, account_name, qr_image, instructions, display_order, created_at, updated_at"

func scanPaymentMethod(row rowScanner) (models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := row.Scan(&m.ID, &m.Name, &m.Type, &m.Active, &m.Phone, &m.AccountName, &m.QRImage, &m.Instructions,
		&m.DisplayOrder, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

type PaymentMethodHandler struct {
	db     *sql.DB
	images ImageStore
	logger *zap.Logger
}

func NewPaymentMethodHandler(db *sql.DB, images ImageStore, logger *zap.Logger) *PaymentMethodHandler {
	return &PaymentMethodHandler{db: db, images: images, logger: logger}
}

// ListActive is read on every request; checkout validates against the same
// table, so what a customer sees here is what an order will accept.
func (h *PaymentMethodHandler) ListActive(c *gin.Context) {
	h.list(c, "SELECT "+paymentMethodColumns+" FROM payment_methods WHERE active = TRUE ORDER BY display_order, id")
}

func (h *PaymentMethodHandler) AdminList(c *gin.Context) {
	h.list(c, "SELECT "+paymentMethodColumns+" FROM payment_methods ORDER BY display_order, id")
}

func (h *PaymentMethodHandler) list(c *gin.Context, query string) {
	ctx, span := startSpan(c, "ListPaymentMethods")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch payment methods", err)
		return
	}
	defer rows.Close()

	methods := []models.PaymentMethod{}
	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			internalError(c, h.logger, span, "Failed to scan payment method", err)
			return
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		internalError(c, h.logger, span, "Failed to fetch payment methods", err)
		return
	}

	c.JSON(http.StatusOK, methods)
}

func (h *PaymentMethodHandler) Update(c *gin.Context) {
	ctx, span := startSpan(c, "UpdatePaymentMethod")
	defer span.End()

	id, ok := paramID(c, "id", "payment method")
	if !ok {
		return
	}

	var req models.UpdatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var previousQR string
	err := h.db.QueryRowContext(ctx, "SELECT qr_image FROM payment_methods WHERE id = $1", id).Scan(&previousQR)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment method not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch payment method", err)
		return
	}

	m, err := scanPaymentMethod(h.db.QueryRowContext(ctx,
		`UPDATE payment_methods SET active = COALESCE($1, active), phone = COALESCE($2, phone),
		account_name = COALESCE($3, account_name), qr_image = COALESCE($4, qr_image),
		instructions = COALESCE($5, instructions), updated_at = NOW()
		WHERE id = $6 RETURNING `+paymentMethodColumns,
		req.Active, req.Phone, req.AccountName, req.QRImage, req.Instructions, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment method not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to update payment method", err)
		return
	}

	if m.QRImage != previousQR {
		h.images.Release(previousQR)
	}

	h.logger.Info("Payment method updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("payment_method_id", id),
		zap.Bool("active", m.Active),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Payment method updated successfully", "method": m})
}

// UploadQR stores a QR code image and returns its URL; the admin then saves
// it on the method with Update.
func (h *PaymentMethodHandler) UploadQR(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A QR image file is required"})
		return
	}

	url, err := h.images.Save("payment_qr", file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to store QR image", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "QR image uploaded successfully", "image_url": url})
}
