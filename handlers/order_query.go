package handlers

import (
	"context"
	"database/sql"
	"fmt"

	"crepes-svc/models"

	"github.com/lib/pq"
)

const (
	orderSelect = `SELECT o.id, o.user_id, o.total, o.status, o.payment_method_id, o.payment_method_name, o.payment_method_type,
		o.delivery_address, o.phone, o.notes, o.gateway_payment_id, o.gateway_preference_id, o.created_at, o.updated_at,
		u.name, u.email
		FROM orders o JOIN users u ON u.id = o.user_id`
	lineSelect = `SELECT l.id, l.order_id, l.product_id, p.name, l.quantity, l.unit_price, l.subtotal, l.notes
		FROM order_lines l LEFT JOIN products p ON p.id = l.product_id
		WHERE l.order_id = ANY($1) ORDER BY l.order_id, l.id`

	deletedProductName = "Deleted product"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanOrder(row rowScanner) (models.Order, error) {
	var o models.Order
	var pmID sql.NullInt64
	var paymentID, preferenceID sql.NullString
	user := &models.UserSummary{}

	err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.Status, &pmID, &o.PaymentMethodName, &o.PaymentMethodType,
		&o.DeliveryAddress, &o.Phone, &o.Notes, &paymentID, &preferenceID, &o.CreatedAt, &o.UpdatedAt,
		&user.Name, &user.Email)
	if err != nil {
		return o, err
	}

	user.ID = o.UserID
	o.User = user
	if pmID.Valid {
		id := int(pmID.Int64)
		o.PaymentMethodID = &id
	}
	if paymentID.Valid {
		o.GatewayPaymentID = &paymentID.String
	}
	if preferenceID.Valid {
		o.GatewayPreferenceID = &preferenceID.String
	}
	o.Lines = []models.OrderLine{}
	return o, nil
}

// loadOrder returns the order with its user and lines, or sql.ErrNoRows.
func loadOrder(ctx context.Context, q queryer, id int) (*models.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, orderSelect+" WHERE o.id = $1", id))
	if err != nil {
		return nil, err
	}
	orders := []models.Order{o}
	if err := attachLines(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// listOrders runs orderSelect with the given suffix. Lines are attached
// when withLines is set.
func listOrders(ctx context.Context, q queryer, withLines bool, suffix string, args ...any) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, orderSelect+" "+suffix, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if withLines && len(orders) > 0 {
		if err := attachLines(ctx, q, orders); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func attachLines(ctx context.Context, q queryer, orders []models.Order) error {
	ids := make([]int64, len(orders))
	index := make(map[int]int, len(orders))
	for i, o := range orders {
		ids[i] = int64(o.ID)
		index[o.ID] = i
	}

	rows, err := q.QueryContext(ctx, lineSelect, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to fetch order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l models.OrderLine
		var productID sql.NullInt64
		var productName sql.NullString
		if err := rows.Scan(&l.ID, &l.OrderID, &productID, &productName, &l.Quantity, &l.UnitPrice, &l.Subtotal, &l.Notes); err != nil {
			return fmt.Errorf("failed to scan order line: %w", err)
		}
		if productID.Valid {
			id := int(productID.Int64)
			l.ProductID = &id
		}
		l.ProductName = deletedProductName
		if productName.Valid {
			l.ProductName = productName.String
		}
		if i, ok := index[l.OrderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l)
		}
	}
	return rows.Err()
}
