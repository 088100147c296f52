package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const userColumns = "id, name, email, password_hash, role, phone, address, created_at"

type AuthHandler struct {
	db       *sql.DB
	secret   []byte
	lifetime time.Duration
	logger   *zap.Logger
}

func NewAuthHandler(db *sql.DB, secret []byte, lifetime time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		db:       db,
		secret:   secret,
		lifetime: lifetime,
		logger:   logger,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	ctx, span := startSpan(c, "Register")
	defer span.End()

	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Check if user already exists
	var existingID int
	err := h.db.QueryRowContext(ctx, "SELECT id FROM users WHERE email = $1", req.Email).Scan(&existingID)
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		internalError(c, h.logger, span, "Database error", err)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		internalError(c, h.logger, span, "Failed to hash password", err)
		return
	}

	var user models.User
	err = h.db.QueryRowContext(ctx,
		"INSERT INTO users (name, email, password_hash, role, phone, address) VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+userColumns,
		req.Name, req.Email, string(hashedPassword), models.RoleCustomer, req.Phone, req.Address,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.Phone, &user.Address, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
			return
		}
		internalError(c, h.logger, span, "Failed to create user", err)
		return
	}

	token, err := middleware.GenerateToken(user, h.secret, h.lifetime)
	if err != nil {
		internalError(c, h.logger, span, "Failed to generate token", err)
		return
	}

	h.logger.Info("User registered", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("user_id", user.ID))
	c.JSON(http.StatusCreated, models.LoginResponse{
		Token:   token,
		User:    user,
		Message: "User registered successfully",
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	h.login(c, false)
}

// AdminLogin only hands out tokens to admins.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	h.login(c, true)
}

func (h *AuthHandler) login(c *gin.Context, adminOnly bool) {
	ctx, span := startSpan(c, "Login")
	defer span.End()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	err := h.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1",
		req.Email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.Phone, &user.Address, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		internalError(c, h.logger, span, "Database error", err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if adminOnly && user.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied. Administrators only."})
		return
	}

	token, err := middleware.GenerateToken(user, h.secret, h.lifetime)
	if err != nil {
		internalError(c, h.logger, span, "Failed to generate token", err)
		return
	}

	h.logger.Info("User logged in",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("user_id", user.ID),
		zap.Bool("admin", adminOnly),
	)
	c.JSON(http.StatusOK, models.LoginResponse{
		Token:   token,
		User:    user,
		Message: "Login successful",
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	ctx, span := startSpan(c, "Me")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)

	var user models.User
	err := h.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1",
		claims.UserID,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.Phone, &user.Address, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated"})
			return
		}
		internalError(c, h.logger, span, "Failed to load user", err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// Logout is a no-op server side; tokens are stateless and expire on their own.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
