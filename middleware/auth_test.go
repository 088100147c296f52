package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func setupAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		claims, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID, "role": claims.Role})
	})
	router.GET("/admin", AuthMiddleware(testSecret), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestGenerateAndParseToken(t *testing.T) {
	user := models.User{ID: 7, Email: "ana@example.com", Role: models.RoleCustomer}

	token, err := GenerateToken(user, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, models.RoleCustomer, claims.Role)
	assert.False(t, claims.IsAdmin())
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(models.User{ID: 1}, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("other"))
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken(models.User{ID: 1}, testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	router := setupAuthRouter()
	customer, _ := GenerateToken(models.User{ID: 3, Role: models.RoleCustomer}, testSecret, time.Hour)
	admin, _ := GenerateToken(models.User{ID: 1, Role: models.RoleAdmin}, testSecret, time.Hour)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"not bearer", "/me", "Token " + customer, http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer abc.def", http.StatusUnauthorized},
		{"valid customer", "/me", "Bearer " + customer, http.StatusOK},
		{"customer on admin route", "/admin", "Bearer " + customer, http.StatusForbidden},
		{"admin on admin route", "/admin", "Bearer " + admin, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}
