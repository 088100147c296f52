package handlers

import (
	"context"
	"database/sql"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"
	"time"

	"crepes-svc/mercadopago"
	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("test-secret")

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func authed() gin.HandlerFunc {
	return middleware.AuthMiddleware(testSecret)
}

func bearer(t *testing.T, userID int, role models.Role) string {
	t.Helper()
	token, err := middleware.GenerateToken(models.User{ID: userID, Email: "user@example.com", Role: role}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return "Bearer " + token
}

func withAuth(req *http.Request, header string) *http.Request {
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Events() []models.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderEvent(nil), p.events...)
}

type fakeGateway struct {
	preferenceReq *mercadopago.PreferenceRequest
	preference    *mercadopago.Preference
	preferenceErr error
	payments      map[string]*mercadopago.Payment
	paymentErr    error
	paymentCalls  int
}

func (g *fakeGateway) CreatePreference(_ context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error) {
	g.preferenceReq = &req
	if g.preferenceErr != nil {
		return nil, g.preferenceErr
	}
	return g.preference, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*mercadopago.Payment, error) {
	g.paymentCalls++
	if g.paymentErr != nil {
		return nil, g.paymentErr
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, &mercadopago.APIError{StatusCode: http.StatusNotFound, Body: []byte(`{"message":"not found"}`)}
	}
	return p, nil
}

type fakeImageStore struct {
	saved    []string
	released []string
}

func (s *fakeImageStore) Save(subdir string, fh *multipart.FileHeader) (string, error) {
	url := "/storage/" + subdir + "/" + fh.Filename
	s.saved = append(s.saved, url)
	return url, nil
}

func (s *fakeImageStore) Release(url string) {
	if url == s.DefaultImage() {
		return
	}
	s.released = append(s.released, url)
}

func (s *fakeImageStore) DefaultImage() string { return "/logo.jpg" }
