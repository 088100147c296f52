package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewUserHandler(db *sql.DB, logger *zap.Logger) *UserHandler {
	return &UserHandler{db: db, logger: logger}
}

// List returns every non-admin account.
func (h *UserHandler) List(c *gin.Context) {
	ctx, span := startSpan(c, "ListUsers")
	defer span.End()

	rows, err := h.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role <> $1 ORDER BY created_at DESC, id DESC",
		models.RoleAdmin,
	)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch users", err)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.Address, &u.CreatedAt); err != nil {
			internalError(c, h.logger, span, "Failed to scan user", err)
			return
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		internalError(c, h.logger, span, "Failed to fetch users", err)
		return
	}

	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) Get(c *gin.Context) {
	ctx, span := startSpan(c, "GetUser")
	defer span.End()

	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	var u models.User
	err := h.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.Address, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch user", err)
		return
	}

	c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Update(c *gin.Context) {
	ctx, span := startSpan(c, "UpdateUser")
	defer span.End()

	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var u models.User
	err := h.db.QueryRowContext(ctx,
		"UPDATE users SET name = $1, email = $2, role = $3, updated_at = NOW() WHERE id = $4 RETURNING "+userColumns,
		req.Name, req.Email, req.Role, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Phone, &u.Address, &u.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case isUniqueViolation(err):
			c.JSON(http.StatusConflict, gin.H{"error": "Email is already in use"})
		default:
			internalError(c, h.logger, span, "Failed to update user", err)
		}
		return
	}

	h.logger.Info("User updated", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("user_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": u})
}

// Delete removes a customer account. Admin accounts cannot be deleted here.
func (h *UserHandler) Delete(c *gin.Context) {
	ctx, span := startSpan(c, "DeleteUser")
	defer span.End()

	id, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	var role models.Role
	err := h.db.QueryRowContext(ctx, "SELECT role FROM users WHERE id = $1", id).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch user", err)
		return
	}
	if role == models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrAdminUndeletable.Error()})
		return
	}

	// the role guard is repeated in the DELETE in case the user was promoted meanwhile
	result, err := h.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1 AND role <> $2", id, models.RoleAdmin)
	if err != nil {
		internalError(c, h.logger, span, "Failed to delete user", err)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrAdminUndeletable.Error()})
		return
	}

	h.logger.Info("User deleted", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("user_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
