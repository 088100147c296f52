package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CategoryRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Active      *bool  `json:"active"`
}

type Product struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	CategoryID   *int            `json:"category_id"`
	CategoryName string          `json:"category"`
	Available    bool            `json:"available"`
	Featured     bool            `json:"featured"`
	Stock        int             `json:"stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductForm is the admin create/update payload. It binds from JSON or from
// a multipart form carrying an "image" file.
type ProductForm struct {
	Name        string           `json:"name" form:"name" binding:"required,max=255"`
	Price       *decimal.Decimal `json:"price" form:"-"`
	PriceRaw    string           `json:"-" form:"price"`
	Category    string           `json:"category" form:"category" binding:"required,max=255"`
	Stock       *int             `json:"stock" form:"stock" binding:"required,gte=0"`
	ImageURL    string           `json:"image_url" form:"image_url"`
	Description string           `json:"description" form:"description"`
	Available   *bool            `json:"available" form:"available"`
	Featured    *bool            `json:"featured" form:"featured"`
}
