package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"crepes-svc/cache"
	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartLine struct {
	models.CartItem
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Available bool            `json:"available"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartView struct {
	Items []CartLine      `json:"items"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type CartHandler struct {
	db     *sql.DB
	carts  *cache.CartStore
	logger *zap.Logger
}

func NewCartHandler(db *sql.DB, carts *cache.CartStore, logger *zap.Logger) *CartHandler {
	return &CartHandler{db: db, carts: carts, logger: logger}
}

func (h *CartHandler) Get(c *gin.Context) {
	ctx, span := startSpan(c, "GetCart")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)
	cart, err := h.carts.Get(ctx, claims.UserID)
	if err != nil {
		internalError(c, h.logger, span, "Failed to load cart", err)
		return
	}

	view, err := h.view(c, cart)
	if err != nil {
		internalError(c, h.logger, span, "Failed to price cart", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CartHandler) Add(c *gin.Context) {
	ctx, span := startSpan(c, "AddToCart")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)

	var req models.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var available bool
	var stock int
	err := h.db.QueryRowContext(ctx, "SELECT available, stock FROM products WHERE id = $1", req.ProductID).Scan(&available, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}
	if !available {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": models.ErrProductUnavailable.Error()})
		return
	}

	cart, err := h.carts.Get(ctx, claims.UserID)
	if err != nil {
		internalError(c, h.logger, span, "Failed to load cart", err)
		return
	}
	cart.Add(models.CartItem{ProductID: req.ProductID, Quantity: req.Quantity, Notes: req.Notes})
	for _, it := range cart.Items {
		if it.ProductID == req.ProductID && it.Quantity > stock {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": models.ErrInsufficientStock.Error(), "stock": stock})
			return
		}
	}
	if err := h.carts.Save(ctx, cart); err != nil {
		internalError(c, h.logger, span, "Failed to save cart", err)
		return
	}

	h.respond(c, cart, "Product added to cart")
}

// Update sets the quantity of a line; zero or less removes it.
func (h *CartHandler) Update(c *gin.Context) {
	ctx, span := startSpan(c, "UpdateCart")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)

	var req models.UpdateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := h.carts.Update(ctx, claims.UserID, func(cart *models.Cart) {
		cart.SetQuantity(req.ProductID, req.Quantity)
	})
	if err != nil {
		internalError(c, h.logger, span, "Failed to update cart", err)
		return
	}

	h.respond(c, cart, "Cart updated")
}

func (h *CartHandler) Remove(c *gin.Context) {
	ctx, span := startSpan(c, "RemoveFromCart")
	defer span.End()

	productID, ok := paramID(c, "productoId", "product")
	if !ok {
		return
	}

	claims, _ := middleware.CurrentUser(c)
	cart, err := h.carts.Update(ctx, claims.UserID, func(cart *models.Cart) {
		cart.Remove(productID)
	})
	if err != nil {
		internalError(c, h.logger, span, "Failed to update cart", err)
		return
	}

	h.respond(c, cart, "Product removed from cart")
}

func (h *CartHandler) Clear(c *gin.Context) {
	ctx, span := startSpan(c, "ClearCart")
	defer span.End()

	claims, _ := middleware.CurrentUser(c)
	if err := h.carts.Clear(ctx, claims.UserID); err != nil {
		internalError(c, h.logger, span, "Failed to clear cart", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart emptied"})
}

func (h *CartHandler) respond(c *gin.Context, cart *models.Cart, message string) {
	view, err := h.view(c, cart)
	if err != nil {
		h.logger.Error("Failed to price cart", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "carrito": view})
}

// view prices the cart against the current catalog. Lines whose product no
// longer exists are left out.
func (h *CartHandler) view(c *gin.Context, cart *models.Cart) (*CartView, error) {
	view := &CartView{Items: []CartLine{}, Total: decimal.Zero}
	if len(cart.Items) == 0 {
		return view, nil
	}

	ids := make([]int64, len(cart.Items))
	for i, it := range cart.Items {
		ids[i] = int64(it.ProductID)
	}

	rows, err := h.db.QueryContext(c.Request.Context(),
		"SELECT id, name, price, image, available FROM products WHERE id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int]CartLine, len(ids))
	for rows.Next() {
		var id int
		var line CartLine
		if err := rows.Scan(&id, &line.Name, &line.Price, &line.Image, &line.Available); err != nil {
			return nil, err
		}
		byID[id] = line
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, it := range cart.Items {
		line, ok := byID[it.ProductID]
		if !ok {
			continue
		}
		line.CartItem = it
		line.Subtotal = models.LineSubtotal(it.Quantity, line.Price)
		view.Items = append(view.Items, line)
		view.Count += it.Quantity
		view.Total = view.Total.Add(line.Subtotal)
	}
	return view, nil
}
