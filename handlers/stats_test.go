package handlers

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"crepes-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupStatsTest(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	db, mock := newMockDB(t)

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewStatsHandler(db, logger)

	router := newTestRouter()
	router.GET("/admin/dashboard", handler.Dashboard)
	router.GET("/admin/stats", handler.Stats)
	router.GET("/admin/stats/sales-by-month", handler.SalesByMonth)
	router.GET("/admin/stats/orders-by-status", handler.OrdersByStatus)

	return mock, router
}

func expectTotals(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT (SELECT COUNT(*) FROM orders)")).
		WithArgs("delivered", "customer").
		WillReturnRows(sqlmock.NewRows([]string{"orders", "revenue", "customers", "products"}).
			AddRow(12, "150.50", 4, 3))
}

func TestStatsHandler_Dashboard(t *testing.T) {
	mock, router := setupStatsTest(t)

	expectTotals(mock)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY o.created_at DESC, o.id DESC LIMIT 5")).
		WillReturnRows(orderRows(10, 7, "39.00", models.OrderStatusConfirmed, "Contra Entrega", models.PaymentTypeCash))

	req := httptest.NewRequest("GET", "/admin/dashboard", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"total_orders":12`)
	assert.Contains(t, w.Body.String(), `"total_revenue":150.5`)
	assert.Contains(t, w.Body.String(), `"recent_orders":[{"id":10`)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestStatsHandler_Stats(t *testing.T) {
	mock, router := setupStatsTest(t)

	expectTotals(mock)
	mock.ExpectQuery(regexp.QuoteMeta("FILTER (WHERE status = $1)")).
		WithArgs("delivered").
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(2, "24.00"))

	req := httptest.NewRequest("GET", "/admin/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"orders_today":2`)
	assert.Contains(t, w.Body.String(), `"revenue_today":24`)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestStatsHandler_SalesByMonth(t *testing.T) {
	mock, router := setupStatsTest(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY month ORDER BY month")).
		WithArgs("delivered").
		WillReturnRows(sqlmock.NewRows([]string{"month", "sum"}).
			AddRow("2026-08", "90.00").
			AddRow("2026-09", "60.50"))

	req := httptest.NewRequest("GET", "/admin/stats/sales-by-month", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"month":"2026-08","total":90},{"month":"2026-09","total":60.5}]`, w.Body.String())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestStatsHandler_OrdersByStatus(t *testing.T) {
	mock, router := setupStatsTest(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM orders GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("confirmed", 3).
			AddRow("pending", 1))

	req := httptest.NewRequest("GET", "/admin/stats/orders-by-status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"status":"confirmed","count":3},{"status":"pending","count":1}]`, w.Body.String())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
