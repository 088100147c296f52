package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crepes-svc/models"

	"github.com/redis/go-redis/v9"
)

const CartTTL = 7 * 24 * time.Hour

// CartStore keeps one JSON cart per user under cart:<user_id>.
type CartStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartStore(rdb *redis.Client) *CartStore {
	return &CartStore{rdb: rdb, ttl: CartTTL}
}

func cartKey(userID int) string {
	return fmt.Sprintf("cart:%d", userID)
}

// Get returns an empty cart when the user has none.
func (s *CartStore) Get(ctx context.Context, userID int) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}

	data, err := s.rdb.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

func (s *CartStore) Save(ctx context.Context, cart *models.Cart) error {
	if len(cart.Items) == 0 {
		return s.Clear(ctx, cart.UserID)
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, cartKey(cart.UserID), data, s.ttl).Err()
}

func (s *CartStore) Clear(ctx context.Context, userID int) error {
	return s.rdb.Del(ctx, cartKey(userID)).Err()
}

// Update loads the cart, applies fn and stores the result.
func (s *CartStore) Update(ctx context.Context, userID int, fn func(*models.Cart)) (*models.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	fn(cart)
	if err := s.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}
