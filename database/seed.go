package database

import (
	"context"
	"database/sql"
	"fmt"

	"crepes-svc/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type seedCategory struct {
	name, description, image string
}

type seedProduct struct {
	name, description, price, image, category string
	stock                                     int
}

type seedPaymentMethod struct {
	name         string
	kind         models.PaymentMethodType
	active       bool
	instructions string
	order        int
}

var seedCategories = []seedCategory{
	{"Bebidas", "Café, té, jugos y bebidas refrescantes", "bebidas.jpg"},
	{"Crepes Salados", "Crepes con ingredientes salados", "crepes-salados.jpg"},
	{"Crepes Dulces", "Crepes con ingredientes dulces", "crepes-dulces.jpg"},
	{"Especiales de la Casa", "Nuestras especialidades únicas", "especiales.jpg"},
}

var seedProducts = []seedProduct{
	{"Café Americano", "Café negro tradicional", "0.00", "/logo.jpg", "Bebidas", 100},
	{"Crepe de Chocolate", "Crepe dulce con chocolate derretido", "12.00", "/crepeChocolate.jpg", "Crepes Dulces", 50},
	{"Crepe Pollo y Queso", "Crepe salado con pollo y queso", "15.00", "/crepeChocolateFresa.jpg", "Crepes Salados", 50},
}

var seedPaymentMethods = []seedPaymentMethod{
	{"Yape", models.PaymentTypeDigital, false, "Escanea el código QR con tu app de Yape y realiza el pago. Luego envía el comprobante.", 1},
	{"Plin", models.PaymentTypeDigital, false, "Escanea el código QR con tu app de Plin y realiza el pago. Luego envía el comprobante.", 2},
	{"Contra Entrega", models.PaymentTypeCash, true, "Paga en efectivo cuando recibas tu pedido en la dirección indicada.", 3},
	{"Mercado Pago", models.PaymentTypeOnline, false, "Paga con tarjeta a través de Mercado Pago.", 4},
}

type SeedResult struct {
	Categories     int
	Products       int
	PaymentMethods int
}

// Seed loads the starter catalog and payment methods. Rows that already exist
// are left untouched, so it is safe to run repeatedly.
func Seed(ctx context.Context, db *sql.DB, logger *zap.Logger) (SeedResult, error) {
	var res SeedResult

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range seedCategories {
		r, err := tx.ExecContext(ctx,
			"INSERT INTO categories (name, description, image, active) VALUES ($1, $2, $3, TRUE) ON CONFLICT (name) DO NOTHING",
			c.name, c.description, c.image,
		)
		if err != nil {
			return res, fmt.Errorf("failed to seed category %q: %w", c.name, err)
		}
		n, _ := r.RowsAffected()
		res.Categories += int(n)
	}

	for _, p := range seedProducts {
		r, err := tx.ExecContext(ctx,
			`INSERT INTO products (name, description, price, image, category_id, available, featured, stock)
			SELECT $1, $2, $3, $4, c.id, TRUE, TRUE, $6 FROM categories c
			WHERE c.name = $5 AND NOT EXISTS (SELECT 1 FROM products WHERE name = $1)`,
			p.name, p.description, p.price, p.image, p.category, p.stock,
		)
		if err != nil {
			return res, fmt.Errorf("failed to seed product %q: %w", p.name, err)
		}
		n, _ := r.RowsAffected()
		res.Products += int(n)
	}

	for _, m := range seedPaymentMethods {
		r, err := tx.ExecContext(ctx,
			"INSERT INTO payment_methods (name, type, active, instructions, display_order) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (name) DO NOTHING",
			m.name, m.kind, m.active, m.instructions, m.order,
		)
		if err != nil {
			return res, fmt.Errorf("failed to seed payment method %q: %w", m.name, err)
		}
		n, _ := r.RowsAffected()
		res.PaymentMethods += int(n)
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit seed: %w", err)
	}

	logger.Info("Seed data loaded",
		zap.Int("categories", res.Categories),
		zap.Int("products", res.Products),
		zap.Int("payment_methods", res.PaymentMethods),
	)
	return res, nil
}

// EnsureAdmin creates the admin account unless a user with that email exists.
// It reports whether a new account was created.
func EnsureAdmin(ctx context.Context, db *sql.DB, name, email, password string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	r, err := db.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role) VALUES ($1, $2, $3, $4) ON CONFLICT (email) DO NOTHING",
		name, email, string(hash), models.RoleAdmin,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create admin: %w", err)
	}
	n, _ := r.RowsAffected()
	return n > 0, nil
}
