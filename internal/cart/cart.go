// Package cart stores buyer shopping carts in Redis. The order engine only
// needs Clear (placement empties the cart as a side effect) and Get for the
// cart display endpoint; cart editing belongs to the storefront.
package cart

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Store is the port consumed by order placement.
type Store interface {
	Get(ctx context.Context, buyerID string) (map[string]int, error)
	Clear(ctx context.Context, buyerID string) error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client. The cart for a buyer is a
// hash keyed cart:{buyerID} mapping productID to quantity.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func key(buyerID string) string {
	return "cart:" + buyerID
}

func (s *redisStore) Get(ctx context.Context, buyerID string) (map[string]int, error) {
	raw, err := s.client.HGetAll(ctx, key(buyerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cart: get %s: %w", buyerID, err)
	}
	items := make(map[string]int, len(raw))
	for productID, qty := range raw {
		n, err := strconv.Atoi(qty)
		if err != nil {
			return nil, fmt.Errorf("cart: bad quantity %q for %s: %w", qty, productID, err)
		}
		items[productID] = n
	}
	return items, nil
}

func (s *redisStore) Clear(ctx context.Context, buyerID string) error {
	if err := s.client.Del(ctx, key(buyerID)).Err(); err != nil {
		return fmt.Errorf("cart: clear %s: %w", buyerID, err)
	}
	return nil
}
