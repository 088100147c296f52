package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StatsHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStatsHandler(db *sql.DB, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{db: db, logger: logger}
}

type totals struct {
	Orders    int             `json:"total_orders"`
	Revenue   decimal.Decimal `json:"total_revenue"`
	Customers int             `json:"total_customers"`
	Products  int             `json:"total_products"`
}

// Revenue only counts delivered orders.
func (h *StatsHandler) totals(ctx context.Context) (totals, error) {
	var t totals
	err := h.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE status = $1),
			(SELECT COUNT(*) FROM users WHERE role = $2),
			(SELECT COUNT(*) FROM products)`,
		models.OrderStatusDelivered, models.RoleCustomer,
	).Scan(&t.Orders, &t.Revenue, &t.Customers, &t.Products)
	return t, err
}

func (h *StatsHandler) Dashboard(c *gin.Context) {
	ctx, span := startSpan(c, "Dashboard")
	defer span.End()

	t, err := h.totals(ctx)
	if err != nil {
		internalError(c, h.logger, span, "Failed to compute totals", err)
		return
	}

	recent, err := listOrders(ctx, h.db, false, "ORDER BY o.created_at DESC, o.id DESC LIMIT 5")
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch recent orders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_orders":    t.Orders,
		"total_revenue":   t.Revenue,
		"total_customers": t.Customers,
		"total_products":  t.Products,
		"recent_orders":   recent,
	})
}

func (h *StatsHandler) Stats(c *gin.Context) {
	ctx, span := startSpan(c, "Stats")
	defer span.End()

	t, err := h.totals(ctx)
	if err != nil {
		internalError(c, h.logger, span, "Failed to compute totals", err)
		return
	}

	var ordersToday int
	var revenueToday decimal.Decimal
	err = h.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total) FILTER (WHERE status = $1), 0)
		FROM orders WHERE created_at >= date_trunc('day', NOW())`,
		models.OrderStatusDelivered,
	).Scan(&ordersToday, &revenueToday)
	if err != nil {
		internalError(c, h.logger, span, "Failed to compute daily totals", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_orders":    t.Orders,
		"total_revenue":   t.Revenue,
		"total_customers": t.Customers,
		"total_products":  t.Products,
		"orders_today":    ordersToday,
		"revenue_today":   revenueToday,
	})
}

type monthlySales struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// SalesByMonth sums delivered revenue per calendar month (YYYY-MM).
func (h *StatsHandler) SalesByMonth(c *gin.Context) {
	ctx, span := startSpan(c, "SalesByMonth")
	defer span.End()

	rows, err := h.db.QueryContext(ctx,
		`SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month, SUM(total)
		FROM orders WHERE status = $1 GROUP BY month ORDER BY month`,
		models.OrderStatusDelivered,
	)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch sales", err)
		return
	}
	defer rows.Close()

	sales := []monthlySales{}
	for rows.Next() {
		var s monthlySales
		if err := rows.Scan(&s.Month, &s.Total); err != nil {
			internalError(c, h.logger, span, "Failed to scan sales", err)
			return
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		internalError(c, h.logger, span, "Failed to fetch sales", err)
		return
	}

	c.JSON(http.StatusOK, sales)
}

type statusCount struct {
	Status models.OrderStatus `json:"status"`
	Count  int                `json:"count"`
}

func (h *StatsHandler) OrdersByStatus(c *gin.Context) {
	ctx, span := startSpan(c, "OrdersByStatus")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM orders GROUP BY status ORDER BY status")
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch order counts", err)
		return
	}
	defer rows.Close()

	counts := []statusCount{}
	for rows.Next() {
		var sc statusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			internalError(c, h.logger, span, "Failed to scan order counts", err)
			return
		}
		counts = append(counts, sc)
	}
	if err := rows.Err(); err != nil {
		internalError(c, h.logger, span, "Failed to fetch order counts", err)
		return
	}

	c.JSON(http.StatusOK, counts)
}
