package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"crepes-svc/mercadopago"
	"crepes-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var testURLs = PaymentURLs{
	FrontendURL: "http://shop.test",
	AppURL:      "http://api.test",
	Currency:    "PEN",
}

func setupPaymentTest(t *testing.T, gateway *fakeGateway) (sqlmock.Sqlmock, *gin.Engine, *recordingPublisher, *miniredis.Miniredis) {
	db, mock := newMockDB(t)
	mr, rdb := newTestRedis(t)
	publisher := &recordingPublisher{}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewPaymentHandler(db, gateway, rdb, publisher, testURLs, logger)

	router := newTestRouter()
	router.POST("/pagos/crear-preferencia", authed(), handler.CreatePreference)
	router.POST("/pagos/verificar", authed(), handler.Verify)
	router.POST("/pagos/webhook", handler.Webhook)
	router.POST("/webhook/mercadopago", handler.Webhook)

	return mock, router, publisher, mr
}

func approvedGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]*mercadopago.Payment{
		"555": {ID: 555, Status: "approved", StatusDetail: "accredited", ExternalReference: "10", TransactionAmount: decimal.NewFromInt(39)},
	}}
}

func expectGuardedUpdate(mock sqlmock.Sqlmock, status models.OrderStatus, from, samePayment []string) *sqlmock.ExpectedQuery {
	return mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $1, gateway_payment_id = $2")).
		WithArgs(string(status), "555", 10, pq.Array(from), pq.Array(samePayment))
}

func postWebhook(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPaymentHandler_Webhook_ApprovedConfirmsOnce(t *testing.T) {
	gateway := approvedGateway()
	mock, router, publisher, _ := setupPaymentTest(t, gateway)

	expectGuardedUpdate(mock, models.OrderStatusConfirmed, []string{"pending", "confirmed", "cancelled"}, []string{}).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "total", "payment_method_name", "payment_method_type"}).
			AddRow(7, "39.00", "Mercado Pago", "online"))

	body := `{"type":"payment","data":{"id":"555"}}`
	w := postWebhook(router, "/pagos/webhook", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	// redelivery is absorbed by the dedupe key
	w = postWebhook(router, "/webhook/mercadopago", body)
	assert.Equal(t, http.StatusOK, w.Code)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPaymentUpdated, events[0].EventType)
	assert.Equal(t, models.OrderStatusConfirmed, events[0].Status)
	assert.Equal(t, "555", events[0].PaymentID)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentHandler_Webhook_PendingDoesNotRegress(t *testing.T) {
	gateway := &fakeGateway{payments: map[string]*mercadopago.Payment{
		"555": {ID: 555, Status: "in_process", ExternalReference: "10"},
	}}
	mock, router, publisher, _ := setupPaymentTest(t, gateway)

	// only a pending order qualifies, so a confirmed one matches no row
	expectGuardedUpdate(mock, models.OrderStatusPending, []string{"pending"}, []string{}).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "total", "payment_method_name", "payment_method_type"}))

	w := postWebhook(router, "/pagos/webhook", `{"type":"payment","data":{"id":555}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, publisher.Events())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentHandler_Webhook_LateRejectionKeepsPaidOrder(t *testing.T) {
	gateway := &fakeGateway{payments: map[string]*mercadopago.Payment{
		"555": {ID: 555, Status: "rejected", StatusDetail: "cc_rejected_insufficient_amount", ExternalReference: "10"},
	}}
	mock, router, publisher, _ := setupPaymentTest(t, gateway)

	// the order was confirmed by another payment, so only a pending row or
	// a row confirmed by payment 555 itself may be cancelled
	expectGuardedUpdate(mock, models.OrderStatusCancelled, []string{"pending"}, []string{"confirmed"}).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "total", "payment_method_name", "payment_method_type"}))

	w := postWebhook(router, "/pagos/webhook", `{"type":"payment","data":{"id":"555"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, publisher.Events())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentTransitions(t *testing.T) {
	tests := []struct {
		status      models.OrderStatus
		from        []string
		samePayment []string
	}{
		{models.OrderStatusConfirmed, []string{"pending", "confirmed", "cancelled"}, []string{}},
		{models.OrderStatusCancelled, []string{"pending"}, []string{"confirmed"}},
		{models.OrderStatusPending, []string{"pending"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			from, samePayment := paymentTransitions(tt.status)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.samePayment, samePayment)
		})
	}
}

func TestPaymentHandler_Webhook_QueryForms(t *testing.T) {
	for _, path := range []string{
		"/pagos/webhook?type=payment&data.id=555",
		"/pagos/webhook?topic=payment&id=555",
	} {
		t.Run(path, func(t *testing.T) {
			mock, router, publisher, _ := setupPaymentTest(t, approvedGateway())
			expectGuardedUpdate(mock, models.OrderStatusConfirmed, []string{"pending", "confirmed", "cancelled"}, []string{}).
				WillReturnRows(sqlmock.NewRows([]string{"user_id", "total", "payment_method_name", "payment_method_type"}).
					AddRow(7, "39.00", "Mercado Pago", "online"))

			w := postWebhook(router, path, "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Len(t, publisher.Events(), 1)

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Database expectations were not met: %v", err)
			}
		})
	}
}

func TestPaymentHandler_Webhook_AlwaysOK(t *testing.T) {
	tests := []struct {
		name    string
		gateway *fakeGateway
		body    string
	}{
		{"malformed body", approvedGateway(), `{not json`},
		{"other topic", approvedGateway(), `{"type":"merchant_order","data":{"id":"1"}}`},
		{"missing id", approvedGateway(), `{"type":"payment"}`},
		{"unknown payment", approvedGateway(), `{"type":"payment","data":{"id":"999"}}`},
		{"gateway down", &fakeGateway{paymentErr: errors.New("timeout")}, `{"type":"payment","data":{"id":"555"}}`},
		{"bad reference", &fakeGateway{payments: map[string]*mercadopago.Payment{
			"555": {ID: 555, Status: "approved", ExternalReference: "abc"},
		}}, `{"type":"payment","data":{"id":"555"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, router, publisher, _ := setupPaymentTest(t, tt.gateway)

			w := postWebhook(router, "/pagos/webhook", tt.body)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
			assert.Empty(t, publisher.Events())

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("Database expectations were not met: %v", err)
			}
		})
	}
}

func TestPaymentHandler_Webhook_OversizedBody(t *testing.T) {
	gateway := approvedGateway()
	mock, router, publisher, _ := setupPaymentTest(t, gateway)

	body := `{"type":"payment","data":{"id":"555"},"padding":"` + strings.Repeat("x", maxWebhookBody) + `"}`
	w := postWebhook(router, "/pagos/webhook", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Zero(t, gateway.paymentCalls)
	assert.Empty(t, publisher.Events())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentHandler_Webhook_DBErrorAllowsRetry(t *testing.T) {
	mock, router, publisher, mr := setupPaymentTest(t, approvedGateway())

	expectGuardedUpdate(mock, models.OrderStatusConfirmed, []string{"pending", "confirmed", "cancelled"}, []string{}).
		WillReturnError(errors.New("connection reset"))

	w := postWebhook(router, "/pagos/webhook", `{"type":"payment","data":{"id":"555"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, publisher.Events())
	assert.False(t, mr.Exists("webhook:555:approved"))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentHandler_CreatePreference(t *testing.T) {
	gateway := &fakeGateway{preference: &mercadopago.Preference{
		ID:               "pref-1",
		InitPoint:        "https://mp/checkout",
		SandboxInitPoint: "https://sandbox/checkout",
	}}
	mock, router, _, _ := setupPaymentTest(t, gateway)

	expectLoadOrder(mock, 10,
		orderRows(10, 7, "39.00", models.OrderStatusPending, "Mercado Pago", models.PaymentTypeOnline),
		sqlmock.NewRows(lineColumns).
			AddRow(100, 10, 2, "Crepe de Chocolate", 2, "12.00", "24.00", "").
			AddRow(101, 10, nil, nil, 1, "15.00", "15.00", ""))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET gateway_preference_id = $1")).
		WithArgs("pref-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := withAuth(httptest.NewRequest("POST", "/pagos/crear-preferencia", bytes.NewBufferString(`{"pedido_id":10}`)), bearer(t, 7, models.RoleCustomer))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"init_point":"https://mp/checkout","preference_id":"pref-1","sandbox_init_point":"https://sandbox/checkout"}`, w.Body.String())

	sent := gateway.preferenceReq
	require.NotNil(t, sent)
	assert.Equal(t, "10", sent.ExternalReference)
	assert.Equal(t, "approved", sent.AutoReturn)
	assert.Equal(t, "CREPES & COFFEE", sent.StatementDescriptor)
	assert.Equal(t, "http://api.test/pagos/webhook", sent.NotificationURL)
	assert.Equal(t, "http://shop.test/pago/exito", sent.BackURLs.Success)
	assert.Equal(t, "http://shop.test/pago/fallo", sent.BackURLs.Failure)
	assert.Equal(t, "http://shop.test/pago/pendiente", sent.BackURLs.Pending)
	require.Len(t, sent.Items, 2)
	assert.Equal(t, mercadopago.Item{Title: "Crepe de Chocolate", Quantity: 2, UnitPrice: 12, CurrencyID: "PEN"}, sent.Items[0])
	assert.Equal(t, "Product", sent.Items[1].Title)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentHandler_CreatePreference_GatewayError(t *testing.T) {
	gateway := &fakeGateway{preferenceErr: &mercadopago.APIError{
		StatusCode: http.StatusBadRequest,
		Body:       json.RawMessage(`{"message":"invalid unit_price"}`),
	}}
	mock, router, _, _ := setupPaymentTest(t, gateway)

	expectLoadOrder(mock, 10,
		orderRows(10, 7, "39.00", models.OrderStatusPending, "Mercado Pago", models.PaymentTypeOnline),
		sqlmock.NewRows(lineColumns))

	req := withAuth(httptest.NewRequest("POST", "/pagos/crear-preferencia", bytes.NewBufferString(`{"pedido_id":10}`)), bearer(t, 7, models.RoleCustomer))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Payment gateway error","details":{"message":"invalid unit_price"}}`, w.Body.String())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestPaymentHandler_CreatePreference_Rejections(t *testing.T) {
	t.Run("not the owner", func(t *testing.T) {
		gateway := &fakeGateway{}
		mock, router, _, _ := setupPaymentTest(t, gateway)
		expectLoadOrder(mock, 10,
			orderRows(10, 7, "39.00", models.OrderStatusPending, "Mercado Pago", models.PaymentTypeOnline),
			sqlmock.NewRows(lineColumns))

		req := withAuth(httptest.NewRequest("POST", "/pagos/crear-preferencia", bytes.NewBufferString(`{"pedido_id":10}`)), bearer(t, 99, models.RoleCustomer))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Nil(t, gateway.preferenceReq)
	})

	t.Run("already paid", func(t *testing.T) {
		gateway := &fakeGateway{}
		mock, router, _, _ := setupPaymentTest(t, gateway)
		expectLoadOrder(mock, 10,
			orderRows(10, 7, "39.00", models.OrderStatusConfirmed, "Mercado Pago", models.PaymentTypeOnline),
			sqlmock.NewRows(lineColumns))

		req := withAuth(httptest.NewRequest("POST", "/pagos/crear-preferencia", bytes.NewBufferString(`{"pedido_id":10}`)), bearer(t, 7, models.RoleCustomer))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Nil(t, gateway.preferenceReq)
	})
}

func TestPaymentHandler_Verify(t *testing.T) {
	mock, router, _, _ := setupPaymentTest(t, approvedGateway())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM orders WHERE id = $1")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))

	req := withAuth(httptest.NewRequest("POST", "/pagos/verificar", bytes.NewBufferString(`{"payment_id":"555"}`)), bearer(t, 7, models.RoleCustomer))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"approved","status_detail":"accredited","external_reference":"10","transaction_amount":39}`, w.Body.String())

	// another customer cannot see it
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM orders WHERE id = $1")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))

	req = withAuth(httptest.NewRequest("POST", "/pagos/verificar", bytes.NewBufferString(`{"payment_id":"555"}`)), bearer(t, 8, models.RoleCustomer))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
