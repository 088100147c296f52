package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"crepes-svc/cache"
	"crepes-svc/middleware"
	"crepes-svc/models"
	"crepes-svc/storage"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	productSelect = `SELECT p.id, p.name, p.description, p.price, p.image, p.category_id, COALESCE(c.name, ''), p.available, p.featured, p.stock, p.created_at, p.updated_at
		FROM products p LEFT JOIN categories c ON c.id = p.category_id`
	categoryColumns = "id, name, description, image, active, created_at, updated_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (models.Product, error) {
	var p models.Product
	var categoryID sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &categoryID, &p.CategoryName,
		&p.Available, &p.Featured, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if categoryID.Valid {
		id := int(categoryID.Int64)
		p.CategoryID = &id
	}
	return p, err
}

func scanCategory(row rowScanner) (models.Category, error) {
	var cat models.Category
	err := row.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.Image, &cat.Active, &cat.CreatedAt, &cat.UpdatedAt)
	return cat, err
}

type CatalogHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	images      ImageStore
	logger      *zap.Logger
}

func NewCatalogHandler(db *sql.DB, redisClient *redis.Client, images ImageStore, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		db:          db,
		redisClient: redisClient,
		images:      images,
		logger:      logger,
	}
}

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	h.listCategories(c, "SELECT "+categoryColumns+" FROM categories WHERE active = TRUE ORDER BY name")
}

func (h *CatalogHandler) AdminListCategories(c *gin.Context) {
	h.listCategories(c, "SELECT "+categoryColumns+" FROM categories ORDER BY name")
}

func (h *CatalogHandler) listCategories(c *gin.Context, query string) {
	ctx, span := startSpan(c, "ListCategories")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch categories", err)
		return
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			internalError(c, h.logger, span, "Failed to scan category", err)
			return
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		internalError(c, h.logger, span, "Failed to fetch categories", err)
		return
	}

	span.SetAttributes(attribute.Int("categories.count", len(categories)))
	c.JSON(http.StatusOK, categories)
}

func (h *CatalogHandler) GetCategory(c *gin.Context) {
	h.getCategory(c, "SELECT "+categoryColumns+" FROM categories WHERE id = $1 AND active = TRUE")
}

func (h *CatalogHandler) AdminGetCategory(c *gin.Context) {
	h.getCategory(c, "SELECT "+categoryColumns+" FROM categories WHERE id = $1")
}

func (h *CatalogHandler) getCategory(c *gin.Context, query string) {
	ctx, span := startSpan(c, "GetCategory")
	defer span.End()

	id, ok := paramID(c, "id", "category")
	if !ok {
		return
	}

	cat, err := scanCategory(h.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch category", err)
		return
	}

	c.JSON(http.StatusOK, cat)
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	ctx, span := startSpan(c, "CreateCategory")
	defer span.End()

	var req models.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	active := req.Active == nil || *req.Active

	cat, err := scanCategory(h.db.QueryRowContext(ctx,
		"INSERT INTO categories (name, description, image, active) VALUES ($1, $2, $3, $4) RETURNING "+categoryColumns,
		req.Name, req.Description, req.Image, active,
	))
	if err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "A category with that name already exists"})
			return
		}
		internalError(c, h.logger, span, "Failed to create category", err)
		return
	}

	h.logger.Info("Category created", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("category_id", cat.ID))
	c.JSON(http.StatusCreated, gin.H{"message": "Category created successfully", "category": cat})
}

func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	ctx, span := startSpan(c, "UpdateCategory")
	defer span.End()

	id, ok := paramID(c, "id", "category")
	if !ok {
		return
	}

	var req models.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cat, err := scanCategory(h.db.QueryRowContext(ctx,
		`UPDATE categories SET name = $1, description = $2, image = $3, active = COALESCE($4, active), updated_at = NOW()
		WHERE id = $5 RETURNING `+categoryColumns,
		req.Name, req.Description, req.Image, req.Active, id,
	))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
		case isUniqueViolation(err):
			c.JSON(http.StatusConflict, gin.H{"error": "A category with that name already exists"})
		default:
			internalError(c, h.logger, span, "Failed to update category", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category updated successfully", "category": cat})
}

func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	ctx, span := startSpan(c, "DeleteCategory")
	defer span.End()

	id, ok := paramID(c, "id", "category")
	if !ok {
		return
	}

	result, err := h.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id)
	if err != nil {
		internalError(c, h.logger, span, "Failed to delete category", err)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
		return
	}

	h.logger.Info("Category deleted", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("category_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
}

// ListProducts returns available products, optionally filtered by
// ?categoria_id= and ?destacado=true.
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	query := productSelect + " WHERE p.available = TRUE"
	var args []any

	if raw := c.Query("categoria_id"); raw != "" {
		categoryID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category ID"})
			return
		}
		args = append(args, categoryID)
		query += fmt.Sprintf(" AND p.category_id = $%d", len(args))
	}
	if featured, _ := strconv.ParseBool(c.Query("destacado")); featured {
		query += " AND p.featured = TRUE"
	}

	h.listProducts(c, query+" ORDER BY p.id", args...)
}

func (h *CatalogHandler) AdminListProducts(c *gin.Context) {
	h.listProducts(c, productSelect+" ORDER BY p.id")
}

func (h *CatalogHandler) listProducts(c *gin.Context, query string, args ...any) {
	ctx, span := startSpan(c, "ListProducts")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch products", err)
		return
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			internalError(c, h.logger, span, "Failed to scan product", err)
			return
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		internalError(c, h.logger, span, "Failed to fetch products", err)
		return
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	c.JSON(http.StatusOK, products)
}

// GetProduct reads through the Redis product cache.
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	ctx, span := startSpan(c, "GetProduct")
	defer span.End()

	id, ok := paramID(c, "id", "product")
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("product.id", id))

	if h.redisClient != nil {
		if cachedData, err := cache.GetProduct(ctx, h.redisClient, id); err == nil {
			var product models.Product
			if err := json.Unmarshal(cachedData, &product); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				c.JSON(http.StatusOK, product)
				return
			}
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	product, err := scanProduct(h.db.QueryRowContext(ctx, productSelect+" WHERE p.id = $1 AND p.available = TRUE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	if h.redisClient != nil {
		if err := cache.SetProduct(ctx, h.redisClient, id, product, cache.ProductTTL); err != nil {
			h.logger.Warn("Failed to cache product", zap.Int("product_id", id), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) AdminGetProduct(c *gin.Context) {
	ctx, span := startSpan(c, "AdminGetProduct")
	defer span.End()

	id, ok := paramID(c, "id", "product")
	if !ok {
		return
	}

	product, err := scanProduct(h.db.QueryRowContext(ctx, productSelect+" WHERE p.id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// bindProductForm accepts JSON or a multipart form with an optional "image"
// file part.
func (h *CatalogHandler) bindProductForm(c *gin.Context) (*models.ProductForm, *multipart.FileHeader, bool) {
	var form models.ProductForm
	var file *multipart.FileHeader

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, nil, false
		}
		if form.PriceRaw != "" {
			price, err := decimal.NewFromString(form.PriceRaw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Price must be a number"})
				return nil, nil, false
			}
			form.Price = &price
		}
		if fh, err := c.FormFile("image"); err == nil {
			file = fh
		}
	} else if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}

	if form.Price == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price is required"})
		return nil, nil, false
	}
	if form.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price must be zero or greater"})
		return nil, nil, false
	}
	return &form, file, true
}

func (h *CatalogHandler) saveImage(c *gin.Context, file *multipart.FileHeader) (string, bool) {
	url, err := h.images.Save("products", file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrTooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return "", false
		}
		h.logger.Error("Failed to store image", zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return "", false
	}
	return url, true
}

// categoryID returns the id of the named category, creating it when needed.
func (h *CatalogHandler) categoryID(ctx context.Context, name string) (int, error) {
	var id int
	err := h.db.QueryRowContext(ctx,
		"INSERT INTO categories (name) VALUES ($1) ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id",
		strings.TrimSpace(name),
	).Scan(&id)
	return id, err
}

func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	ctx, span := startSpan(c, "CreateProduct")
	defer span.End()

	form, file, ok := h.bindProductForm(c)
	if !ok {
		return
	}

	image := h.images.DefaultImage()
	switch {
	case file != nil:
		if image, ok = h.saveImage(c, file); !ok {
			return
		}
	case form.ImageURL != "":
		image = form.ImageURL
	}
	// only an upload stored by this request is ours to drop
	discard := func() {
		if file != nil {
			h.images.Release(image)
		}
	}

	categoryID, err := h.categoryID(ctx, form.Category)
	if err != nil {
		discard()
		internalError(c, h.logger, span, "Failed to resolve category", err)
		return
	}

	available := form.Available == nil || *form.Available
	featured := form.Featured != nil && *form.Featured

	var id int
	err = h.db.QueryRowContext(ctx,
		`INSERT INTO products (name, description, price, image, category_id, available, featured, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		form.Name, form.Description, *form.Price, image, categoryID, available, featured, *form.Stock,
	).Scan(&id)
	if err != nil {
		discard()
		internalError(c, h.logger, span, "Failed to create product", err)
		return
	}

	product, err := scanProduct(h.db.QueryRowContext(ctx, productSelect+" WHERE p.id = $1", id))
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	span.SetAttributes(attribute.Int("product.id", product.ID))
	h.logger.Info("Product created", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("product_id", product.ID))
	c.JSON(http.StatusCreated, gin.H{"message": "Product created successfully", "product": product})
}

func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	ctx, span := startSpan(c, "UpdateProduct")
	defer span.End()

	id, ok := paramID(c, "id", "product")
	if !ok {
		return
	}

	var currentImage string
	err := h.db.QueryRowContext(ctx, "SELECT image FROM products WHERE id = $1", id).Scan(&currentImage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	form, file, ok := h.bindProductForm(c)
	if !ok {
		return
	}

	image := currentImage
	switch {
	case file != nil:
		if image, ok = h.saveImage(c, file); !ok {
			return
		}
	case form.ImageURL != "":
		image = form.ImageURL
	}
	replaced := image != currentImage
	// drops a freshly stored upload when the update does not go through
	discard := func() {
		if file != nil {
			h.images.Release(image)
		}
	}

	categoryID, err := h.categoryID(ctx, form.Category)
	if err != nil {
		discard()
		internalError(c, h.logger, span, "Failed to resolve category", err)
		return
	}

	result, err := h.db.ExecContext(ctx,
		`UPDATE products SET name = $1, description = $2, price = $3, image = $4, category_id = $5,
		available = COALESCE($6, available), featured = COALESCE($7, featured), stock = $8, updated_at = NOW()
		WHERE id = $9`,
		form.Name, form.Description, *form.Price, image, categoryID, form.Available, form.Featured, *form.Stock, id,
	)
	if err != nil {
		discard()
		internalError(c, h.logger, span, "Failed to update product", err)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		discard()
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	if replaced {
		h.releaseIfUnused(ctx, currentImage)
	}
	h.invalidateProduct(ctx, id)

	product, err := scanProduct(h.db.QueryRowContext(ctx, productSelect+" WHERE p.id = $1", id))
	if err != nil {
		internalError(c, h.logger, span, "Failed to fetch product", err)
		return
	}

	h.logger.Info("Product updated", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("product_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
}

func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	ctx, span := startSpan(c, "DeleteProduct")
	defer span.End()

	id, ok := paramID(c, "id", "product")
	if !ok {
		return
	}

	var image string
	err := h.db.QueryRowContext(ctx, "DELETE FROM products WHERE id = $1 RETURNING image", id).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		internalError(c, h.logger, span, "Failed to delete product", err)
		return
	}

	h.releaseIfUnused(ctx, image)
	h.invalidateProduct(ctx, id)

	h.logger.Info("Product deleted", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("product_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

func (h *CatalogHandler) UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "An image file is required"})
		return
	}

	url, ok := h.saveImage(c, file)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image uploaded successfully", "image_url": url})
}

// releaseIfUnused drops an image no product points at any more. Images can be
// shared through image_url, so a file still in use is kept, and so is one
// whose usage cannot be checked.
func (h *CatalogHandler) releaseIfUnused(ctx context.Context, image string) {
	if image == "" || image == h.images.DefaultImage() {
		return
	}
	var inUse bool
	err := h.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM products WHERE image = $1)", image).Scan(&inUse)
	if err != nil {
		h.logger.Warn("Keeping image, usage check failed",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("image", image),
			zap.Error(err),
		)
		return
	}
	if !inUse {
		h.images.Release(image)
	}
}

func (h *CatalogHandler) invalidateProduct(ctx context.Context, id int) {
	invalidateProducts(ctx, h.redisClient, h.logger, id)
}

func invalidateProducts(ctx context.Context, rdb *redis.Client, logger *zap.Logger, ids ...int) {
	if rdb == nil {
		return
	}
	for _, id := range ids {
		if err := cache.DeleteProduct(ctx, rdb, id); err != nil {
			logger.Warn("Failed to invalidate product cache", zap.Int("product_id", id), zap.Error(err))
		}
	}
}
