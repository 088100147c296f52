package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"crepes-svc/cache"
	"crepes-svc/circuitbreaker"
	"crepes-svc/mercadopago"
	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const statementDescriptor = "CREPES & COFFEE"

// maxWebhookBody caps what a notification may carry. Real ones are a few
// hundred bytes.
const maxWebhookBody = 64 << 10

// PaymentURLs are the absolute URLs handed to the gateway.
type PaymentURLs struct {
	FrontendURL string
	AppURL      string
	Currency    string
}

type PaymentHandler struct {
	db          *sql.DB
	gateway     PaymentGateway
	redisClient *redis.Client
	publisher   EventPublisher
	urls        PaymentURLs
	logger      *zap.Logger
}

func NewPaymentHandler(db *sql.DB, gateway PaymentGateway, redisClient *redis.Client, publisher EventPublisher, urls PaymentURLs, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		db:          db,
		gateway:     gateway,
		redisClient: redisClient,
		publisher:   publisher,
		urls:        urls,
		logger:      logger,
	}
}

type createPreferenceRequest struct {
	OrderID int `json:"pedido_id" binding:"required,gt=0"`
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

// CreatePreference opens a hosted checkout for an order that is still
// awaiting payment.
func (h *PaymentHandler) CreatePreference(c *gin.Context) {
	ctx, span := startSpan(c, "CreatePreference")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)

	var req createPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Int("order.id", req.OrderID))

	order, err := loadOrder(ctx, h.db, req.OrderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to get order", err)
		return
	}
	if order.UserID != claims.UserID && !claims.IsAdmin() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if order.Status != models.OrderStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Order is not awaiting payment"})
		return
	}

	pref, err := h.gateway.CreatePreference(ctx, h.preferenceFor(order))
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create payment preference",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", order.ID),
			zap.Error(err),
		)
		var apiErr *mercadopago.APIError
		switch {
		case errors.As(err, &apiErr):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway error", "details": apiErr.Body})
		case errors.Is(err, circuitbreaker.ErrCircuitOpen):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment gateway temporarily unavailable"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
		}
		return
	}

	// The order can still be settled through external_reference if this
	// write fails, so the checkout link is returned regardless.
	if _, err := h.db.ExecContext(ctx,
		"UPDATE orders SET gateway_preference_id = $1, updated_at = NOW() WHERE id = $2",
		pref.ID, order.ID,
	); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to store preference id",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", order.ID),
			zap.Error(err),
		)
	}

	h.logger.Info("Payment preference created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.String("preference_id", pref.ID),
	)
	c.JSON(http.StatusOK, gin.H{
		"init_point":         pref.InitPoint,
		"preference_id":      pref.ID,
		"sandbox_init_point": pref.SandboxInitPoint,
	})
}

func (h *PaymentHandler) preferenceFor(order *models.Order) mercadopago.PreferenceRequest {
	items := make([]mercadopago.Item, 0, len(order.Lines))
	for _, l := range order.Lines {
		title := l.ProductName
		if l.ProductID == nil || title == "" {
			title = "Product"
		}
		items = append(items, mercadopago.Item{
			Title:      title,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice.InexactFloat64(),
			CurrencyID: h.urls.Currency,
		})
	}

	return mercadopago.PreferenceRequest{
		Items: items,
		BackURLs: mercadopago.BackURLs{
			Success: h.urls.FrontendURL + "/pago/exito",
			Failure: h.urls.FrontendURL + "/pago/fallo",
			Pending: h.urls.FrontendURL + "/pago/pendiente",
		},
		AutoReturn:          "approved",
		ExternalReference:   strconv.Itoa(order.ID),
		StatementDescriptor: statementDescriptor,
		NotificationURL:     h.urls.AppURL + "/pagos/webhook",
	}
}

type webhookPayload struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// notificationTarget extracts the event type and resource id from either the
// JSON body or the query string forms the gateway uses.
func notificationTarget(c *gin.Context, body []byte) (kind, id string) {
	var p webhookPayload
	if len(body) > 0 && json.Unmarshal(body, &p) == nil {
		kind = p.Type
		id = strings.Trim(strings.TrimSpace(string(p.Data.ID)), `"`)
	}
	if kind == "" {
		kind = c.Query("type")
	}
	if kind == "" {
		kind = c.Query("topic")
	}
	if id == "" || id == "null" {
		id = c.Query("data.id")
	}
	if id == "" {
		id = c.Query("id")
	}
	return kind, id
}

// Webhook always answers 200 so the gateway does not keep redelivering;
// problems are logged and counted instead.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	ctx, span := startSpan(c, "PaymentWebhook")
	defer span.End()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("Discarding unreadable webhook body",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Error(err),
		)
		middleware.RecordWebhookEvent("ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	kind, paymentID := notificationTarget(c, body)
	span.SetAttributes(attribute.String("webhook.type", kind), attribute.String("payment.id", paymentID))

	outcome := h.handleNotification(ctx, kind, paymentID)
	middleware.RecordWebhookEvent(outcome)
	span.SetAttributes(attribute.String("webhook.outcome", outcome))

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *PaymentHandler) handleNotification(ctx context.Context, kind, paymentID string) string {
	traceID := middleware.GetTraceID(ctx)
	if kind != "payment" || paymentID == "" {
		h.logger.Info("Ignoring gateway notification", zap.String("trace_id", traceID), zap.String("type", kind))
		return "ignored"
	}

	payment, err := h.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		h.logger.Error("Failed to fetch payment", zap.String("trace_id", traceID), zap.String("payment_id", paymentID), zap.Error(err))
		return "failed"
	}

	orderID, err := strconv.Atoi(payment.ExternalReference)
	if err != nil {
		h.logger.Warn("Payment has no usable external reference",
			zap.String("trace_id", traceID),
			zap.String("payment_id", paymentID),
			zap.String("external_reference", payment.ExternalReference),
		)
		return "ignored"
	}

	if h.redisClient != nil {
		first, err := cache.MarkWebhookProcessed(ctx, h.redisClient, paymentID, payment.Status)
		if err != nil {
			h.logger.Warn("Webhook dedupe unavailable", zap.String("trace_id", traceID), zap.Error(err))
		} else if !first {
			h.logger.Info("Duplicate gateway notification", zap.String("trace_id", traceID), zap.String("payment_id", paymentID))
			return "duplicate"
		}
	}

	status := models.StatusFromGateway(payment.Status)
	order, err := h.applyPayment(ctx, orderID, paymentID, status)
	if err != nil {
		h.logger.Error("Failed to apply payment",
			zap.String("trace_id", traceID),
			zap.Int("order_id", orderID),
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		if h.redisClient != nil {
			_ = cache.ForgetWebhook(ctx, h.redisClient, paymentID, payment.Status)
		}
		return "failed"
	}
	if order == nil {
		h.logger.Info("Payment notification left order unchanged",
			zap.String("trace_id", traceID),
			zap.Int("order_id", orderID),
			zap.String("payment_status", payment.Status),
		)
		return "ignored"
	}

	publish(ctx, h.publisher, h.logger, order.Event(models.EventPaymentUpdated))
	h.logger.Info("Payment applied",
		zap.String("trace_id", traceID),
		zap.Int("order_id", orderID),
		zap.String("payment_id", paymentID),
		zap.String("status", string(status)),
	)
	return "applied"
}

// applyPayment moves the order to status unless fulfilment has already
// started, and never lets a non-final payment status undo a settled one.
// A rejection only cancels a confirmed order when it concerns the payment
// that confirmed it. It returns nil, nil when no row qualified.
func (h *PaymentHandler) applyPayment(ctx context.Context, orderID int, paymentID string, status models.OrderStatus) (*models.Order, error) {
	from, samePayment := paymentTransitions(status)

	order := &models.Order{ID: orderID, Status: status, GatewayPaymentID: &paymentID}
	err := h.db.QueryRowContext(ctx,
		`UPDATE orders SET status = $1, gateway_payment_id = $2, updated_at = NOW()
		WHERE id = $3 AND (status = ANY($4) OR (status = ANY($5) AND gateway_payment_id = $2))
		RETURNING user_id, total, payment_method_name, payment_method_type`,
		status, paymentID, orderID, pq.Array(from), pq.Array(samePayment),
	).Scan(&order.UserID, &order.Total, &order.PaymentMethodName, &order.PaymentMethodType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// paymentTransitions lists the statuses an order may leave for status on any
// notification, and the extra ones it may leave only when the notifying
// payment is the one already recorded on the order.
func paymentTransitions(status models.OrderStatus) (from, samePayment []string) {
	switch status {
	case models.OrderStatusConfirmed:
		for _, s := range models.PaymentPhaseStatuses {
			from = append(from, string(s))
		}
		return from, []string{}
	case models.OrderStatusCancelled:
		return []string{string(models.OrderStatusPending)}, []string{string(models.OrderStatusConfirmed)}
	default:
		return []string{string(models.OrderStatusPending)}, []string{}
	}
}

// Verify looks a payment up at the gateway. Customers can only look at
// payments for their own orders.
func (h *PaymentHandler) Verify(c *gin.Context) {
	ctx, span := startSpan(c, "VerifyPayment")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)

	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.String("payment.id", req.PaymentID))

	payment, err := h.gateway.GetPayment(ctx, req.PaymentID)
	if err != nil {
		span.RecordError(err)
		var apiErr *mercadopago.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		h.logger.Error("Failed to verify payment", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
		return
	}

	if !claims.IsAdmin() {
		var ownerID int
		orderID, _ := strconv.Atoi(payment.ExternalReference)
		err := h.db.QueryRowContext(ctx, "SELECT user_id FROM orders WHERE id = $1", orderID).Scan(&ownerID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			internalError(c, h.logger, span, "Failed to get order", err)
			return
		}
		if err != nil || ownerID != claims.UserID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             payment.Status,
		"status_detail":      payment.StatusDetail,
		"external_reference": payment.ExternalReference,
		"transaction_amount": payment.TransactionAmount,
	})
}
