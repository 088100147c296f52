package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"crepes-svc/cache"
	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OrderHandler struct {
	db          *sql.DB
	publisher   EventPublisher
	carts       *cache.CartStore
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewOrderHandler(db *sql.DB, publisher EventPublisher, redisClient *redis.Client, logger *zap.Logger) *OrderHandler {
	h := &OrderHandler{
		db:          db,
		publisher:   publisher,
		redisClient: redisClient,
		logger:      logger,
	}
	if redisClient != nil {
		h.carts = cache.NewCartStore(redisClient)
	}
	return h
}

type lockedProduct struct {
	name      string
	price     decimal.Decimal
	available bool
	stock     int
}

// PlaceOrder turns a checkout into an order. Stock, the payment method and
// the order rows are all handled in a single transaction.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	ctx, span := startSpan(c, "PlaceOrder")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)

	var req models.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Total.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "The total must be zero or greater"})
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", claims.UserID),
		attribute.String("payment_method", req.PaymentMethod),
		attribute.Int("lines", len(req.Products)),
	)

	order, method, err := h.placeOrder(ctx, claims.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrPaymentMethodUnavailable),
			errors.Is(err, models.ErrProductNotFound),
			errors.Is(err, models.ErrProductUnavailable),
			errors.Is(err, models.ErrInsufficientStock):
			span.SetAttributes(attribute.String("rejected", err.Error()))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
		default:
			internalError(c, h.logger, span, "Failed to create order", err)
		}
		return
	}

	if !order.Total.Equal(*req.Total) {
		h.logger.Warn("Client total differs from computed total",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("order_id", order.ID),
			zap.String("client_total", req.Total.StringFixed(2)),
			zap.String("total", order.Total.StringFixed(2)),
		)
	}

	span.SetAttributes(attribute.Int("order.id", order.ID), attribute.String("order.status", string(order.Status)))
	middleware.RecordOrderPlaced(string(method.Type))
	publish(ctx, h.publisher, h.logger, order.Event(models.EventOrderCreated))

	touched := make([]int, 0, len(order.Lines))
	for _, l := range order.Lines {
		touched = append(touched, *l.ProductID)
	}
	invalidateProducts(ctx, h.redisClient, h.logger, touched...)
	if h.carts != nil {
		if err := h.carts.Clear(ctx, claims.UserID); err != nil {
			h.logger.Warn("Failed to clear cart", zap.Int("user_id", claims.UserID), zap.Error(err))
		}
	}

	h.logger.Info("Order created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("payment_method", method.Name),
	)
	c.JSON(http.StatusCreated, models.PlaceOrderResponse{
		Message:       method.Type.ConfirmationMessage(),
		Order:         order,
		PaymentMethod: method.Name,
	})
}

func (h *OrderHandler) placeOrder(ctx context.Context, userID int, req models.PlaceOrderRequest) (*models.Order, *models.PaymentMethod, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	user := &models.UserSummary{ID: userID}
	err = tx.QueryRowContext(ctx, "SELECT name, email FROM users WHERE id = $1", userID).Scan(&user.Name, &user.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, models.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	// The active set is read here, under the transaction, so a method switched
	// off by an admin cannot be used by a checkout that started earlier.
	var method models.PaymentMethod
	err = tx.QueryRowContext(ctx,
		"SELECT id, name, type FROM payment_methods WHERE name = $1 AND active = TRUE FOR SHARE",
		req.PaymentMethod,
	).Scan(&method.ID, &method.Name, &method.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrPaymentMethodUnavailable, req.PaymentMethod)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payment method: %w", err)
	}

	ids := make([]int64, 0, len(req.Products))
	wanted := make(map[int]int, len(req.Products))
	for _, p := range req.Products {
		if _, seen := wanted[p.ProductID]; !seen {
			ids = append(ids, int64(p.ProductID))
		}
		wanted[p.ProductID] += p.Quantity
	}
	slices.Sort(ids)

	// Rows are locked in id order so concurrent checkouts cannot deadlock.
	rows, err := tx.QueryContext(ctx,
		"SELECT id, name, price, available, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE",
		pq.Array(ids),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock products: %w", err)
	}
	products := make(map[int]lockedProduct, len(ids))
	for rows.Next() {
		var id int
		var p lockedProduct
		if err := rows.Scan(&id, &p.name, &p.price, &p.available, &p.stock); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products[id] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to lock products: %w", err)
	}

	for _, id := range ids {
		p, ok := products[int(id)]
		switch {
		case !ok:
			return nil, nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
		case !p.available:
			return nil, nil, fmt.Errorf("%w: %s", models.ErrProductUnavailable, p.name)
		case p.stock < wanted[int(id)]:
			return nil, nil, fmt.Errorf("%w for %s", models.ErrInsufficientStock, p.name)
		}
	}

	order := &models.Order{
		UserID:            userID,
		Total:             decimal.Zero,
		Status:            method.Type.InitialStatus(),
		PaymentMethodID:   &method.ID,
		PaymentMethodName: method.Name,
		PaymentMethodType: method.Type,
		DeliveryAddress:   req.DeliveryAddress,
		Phone:             req.Phone,
		Notes:             req.Notes,
		User:              user,
		Lines:             make([]models.OrderLine, 0, len(req.Products)),
	}
	for _, r := range req.Products {
		p := products[r.ProductID]
		productID := r.ProductID
		line := models.OrderLine{
			ProductID:   &productID,
			ProductName: p.name,
			Quantity:    r.Quantity,
			UnitPrice:   p.price,
			Subtotal:    models.LineSubtotal(r.Quantity, p.price),
			Notes:       r.Notes,
		}
		order.Total = order.Total.Add(line.Subtotal)
		order.Lines = append(order.Lines, line)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total, status, payment_method_id, payment_method_name, payment_method_type, delivery_address, phone, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at`,
		userID, order.Total, order.Status, method.ID, method.Name, method.Type, order.DeliveryAddress, order.Phone, order.Notes,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Lines {
		l := &order.Lines[i]
		l.OrderID = order.ID
		err = tx.QueryRowContext(ctx,
			"INSERT INTO order_lines (order_id, product_id, quantity, unit_price, subtotal, notes) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			order.ID, *l.ProductID, l.Quantity, l.UnitPrice, l.Subtotal, l.Notes,
		).Scan(&l.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2",
			wanted[int(id)], id,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to update stock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return order, &method, nil
}

// ListMine returns the caller's orders, newest first.
func (h *OrderHandler) ListMine(c *gin.Context) {
	ctx, span := startSpan(c, "ListMyOrders")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)
	orders, err := listOrders(ctx, h.db, true, "WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id DESC", claims.UserID)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch orders", err)
		return
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	c.JSON(http.StatusOK, orders)
}

// Get returns one order. Customers only see their own orders.
func (h *OrderHandler) Get(c *gin.Context) {
	ctx, span := startSpan(c, "GetOrder")
	defer span.End()

	id, ok := paramID(c, "id", "order")
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("order.id", id))

	claims, _ := middleware.CurrentUser(c)
	order, err := loadOrder(ctx, h.db, id)
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

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) AdminList(c *gin.Context) {
	ctx, span := startSpan(c, "AdminListOrders")
	defer span.End()

	suffix := "ORDER BY o.created_at DESC, o.id DESC"
	var args []any
	if status := models.OrderStatus(c.Query("status")); status != "" {
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidStatus.Error()})
			return
		}
		suffix = "WHERE o.status = $1 " + suffix
		args = append(args, status)
	}

	orders, err := listOrders(ctx, h.db, true, suffix, args...)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch orders", err)
		return
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	c.JSON(http.StatusOK, orders)
}

// UpdateStatus lets an admin move an order to any valid status.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	ctx, span := startSpan(c, "UpdateOrderStatus")
	defer span.End()

	id, ok := paramID(c, "id", "order")
	if !ok {
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrInvalidStatus.Error()})
		return
	}

	span.SetAttributes(attribute.Int("order.id", id), attribute.String("order.status", string(req.Status)))

	result, err := h.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		req.Status, id,
	)
	if err != nil {
		internalError(c, h.logger, span, "Failed to update order status", err)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	order, err := loadOrder(ctx, h.db, id)
	if err != nil {
		internalError(c, h.logger, span, "Failed to get order", err)
		return
	}

	publish(ctx, h.publisher, h.logger, order.Event(models.EventOrderStatusChanged))

	h.logger.Info("Order status updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", id),
		zap.String("status", string(req.Status)),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated successfully", "pedido": order})
}
