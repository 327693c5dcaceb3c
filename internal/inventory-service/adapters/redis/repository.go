// Package redis keeps inventory stock and reservations in Redis. Every
// change runs in a WATCH transaction so concurrent sagas never oversell.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/orchestrated-sagas/internal/inventory-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/cache"
)

// InitialStock is seeded on startup for products without a stock key.
var InitialStock = map[string]int{
	"COMIC_BOOKS": 10,
	"BOOKS":       2,
	"MOVIES":      5,
	"MUSIC":       9,
}

type Repository struct {
	cache cache.Cache
}

func New(c cache.Cache) *Repository {
	return &Repository{cache: c}
}

// Seed sets the stock of products that have none yet.
func (r *Repository) Seed(ctx context.Context, stock map[string]int) error {
	for code, qty := range stock {
		if _, err := r.cache.SetNX(ctx, r.stockKey(code), qty, 0); err != nil {
			return fmt.Errorf("redis: seed stock %s: %w", code, err)
		}
	}
	return nil
}

func (r *Repository) stockKey(code string) string {
	return r.cache.GenerateKey("stock", code)
}

func (r *Repository) reservationKey(orderID, transactionID string) string {
	return r.cache.GenerateKey("reservation", orderID+":"+transactionID)
}

func (r *Repository) Stock(ctx context.Context, productCode string) (int, error) {
	v, err := r.cache.Get(ctx, r.stockKey(productCode))
	if err != nil {
		return 0, fmt.Errorf("redis: get stock %s: %w", productCode, err)
	}
	if v == "" {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, productCode)
	}
	return strconv.Atoi(v)
}

func (r *Repository) ExistsByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (bool, error) {
	ok, err := r.cache.Exists(ctx, r.reservationKey(orderID, transactionID))
	if err != nil {
		return false, fmt.Errorf("redis: exists reservation %q: %w", transactionID, err)
	}
	return ok, nil
}

func (r *Repository) FindByOrderIDAndTransactionID(ctx context.Context, orderID, transactionID string) (*domain.Reservation, error) {
	v, err := r.cache.Get(ctx, r.reservationKey(orderID, transactionID))
	if err != nil {
		return nil, fmt.Errorf("redis: get reservation %q: %w", transactionID, err)
	}
	if v == "" {
		return nil, domain.ErrNotFound
	}
	var res domain.Reservation
	if err := json.Unmarshal([]byte(v), &res); err != nil {
		return nil, fmt.Errorf("redis: decode reservation %q: %w", transactionID, err)
	}
	return &res, nil
}

func (r *Repository) Reserve(ctx context.Context, orderID, transactionID string, items []domain.StockItem, at time.Time) (*domain.Reservation, error) {
	resKey := r.reservationKey(orderID, transactionID)
	keys := []string{resKey}
	for _, item := range items {
		keys = append(keys, r.stockKey(item.ProductCode))
	}

	var reservation *domain.Reservation
	err := r.cache.Update(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, resKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrDuplicate
		}

		// Quantities for the same product add up.
		available := make(map[string]int, len(items))
		res := &domain.Reservation{OrderID: orderID, TransactionID: transactionID, CreatedAt: at, UpdatedAt: at}
		for _, item := range items {
			old, ok := available[item.ProductCode]
			if !ok {
				old, err = tx.Get(ctx, r.stockKey(item.ProductCode)).Int()
				if errors.Is(err, redis.Nil) {
					return fmt.Errorf("%w: %s", domain.ErrUnknownProduct, item.ProductCode)
				}
				if err != nil {
					return err
				}
			}
			if item.Quantity > old {
				return fmt.Errorf("%w: %s has %d, requested %d", domain.ErrInsufficientStock, item.ProductCode, old, item.Quantity)
			}
			available[item.ProductCode] = old - item.Quantity
			res.Lines = append(res.Lines, domain.ReservationLine{
				ProductCode:   item.ProductCode,
				OldQuantity:   old,
				OrderQuantity: item.Quantity,
				NewQuantity:   old - item.Quantity,
			})
		}

		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for code, qty := range available {
				p.Set(ctx, r.stockKey(code), qty, 0)
			}
			p.Set(ctx, resKey, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		reservation = res
		return nil
	}, keys...)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrUnknownProduct) || errors.Is(err, domain.ErrInsufficientStock) {
			return nil, err
		}
		return nil, fmt.Errorf("redis: reserve %q: %w", transactionID, err)
	}
	return reservation, nil
}

func (r *Repository) Release(ctx context.Context, orderID, transactionID string, at time.Time) (bool, error) {
	resKey := r.reservationKey(orderID, transactionID)

	var found bool
	err := r.cache.Update(ctx, func(tx *redis.Tx) error {
		v, err := tx.Get(ctx, resKey).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			marker, err := json.Marshal(&domain.Reservation{
				OrderID:       orderID,
				TransactionID: transactionID,
				Released:      true,
				CreatedAt:     at,
				UpdatedAt:     at,
			})
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, resKey, marker, 0)
				return nil
			})
			return err
		}
		if err != nil {
			return err
		}

		found = true
		var res domain.Reservation
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			return fmt.Errorf("decode reservation: %w", err)
		}
		if res.Released {
			return nil
		}

		res.Released = true
		res.UpdatedAt = at
		data, err := json.Marshal(&res)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, line := range res.Lines {
				p.IncrBy(ctx, r.stockKey(line.ProductCode), int64(line.OrderQuantity))
			}
			p.Set(ctx, resKey, data, 0)
			return nil
		})
		return err
	}, resKey)
	if err != nil {
		return false, fmt.Errorf("redis: release %q: %w", transactionID, err)
	}
	return found, nil
}

var _ domain.Repository = (*Repository)(nil)
