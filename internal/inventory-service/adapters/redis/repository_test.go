package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/orchestrated-sagas/internal/inventory-service/domain"
	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/cache"
)

var at = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*Repository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewRedisCache(mr.Addr(), 0, "inventory")
	t.Cleanup(func() { _ = c.Close() })

	repo := New(c)
	require.NoError(t, repo.Seed(context.Background(), InitialStock))
	return repo, mr
}

func stock(t *testing.T, repo *Repository, code string) int {
	t.Helper()
	n, err := repo.Stock(context.Background(), code)
	require.NoError(t, err)
	return n
}

func TestRepository_SeedKeepsExistingStock(t *testing.T) {
	repo, mr := newTestRepo(t)
	require.NoError(t, mr.Set("inventory:stock:BOOKS", "1"))

	require.NoError(t, repo.Seed(context.Background(), InitialStock))
	assert.Equal(t, 1, stock(t, repo, "BOOKS"))
	assert.Equal(t, 10, stock(t, repo, "COMIC_BOOKS"))
}

func TestRepository_Reserve(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	res, err := repo.Reserve(ctx, "O1", "T1", []domain.StockItem{
		{ProductCode: "MOVIES", Quantity: 2},
		{ProductCode: "BOOKS", Quantity: 1},
	}, at)
	require.NoError(t, err)

	assert.Equal(t, []domain.ReservationLine{
		{ProductCode: "MOVIES", OldQuantity: 5, OrderQuantity: 2, NewQuantity: 3},
		{ProductCode: "BOOKS", OldQuantity: 2, OrderQuantity: 1, NewQuantity: 1},
	}, res.Lines)
	assert.Equal(t, 3, stock(t, repo, "MOVIES"))
	assert.Equal(t, 1, stock(t, repo, "BOOKS"))

	exists, err := repo.ExistsByOrderIDAndTransactionID(ctx, "O1", "T1")
	require.NoError(t, err)
	assert.True(t, exists)

	stored, err := repo.FindByOrderIDAndTransactionID(ctx, "O1", "T1")
	require.NoError(t, err)
	assert.False(t, stored.Released)
	assert.Len(t, stored.Lines, 2)

	_, err = repo.Reserve(ctx, "O1", "T1", []domain.StockItem{{ProductCode: "MOVIES", Quantity: 1}}, at)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Equal(t, 3, stock(t, repo, "MOVIES"))
}

func TestRepository_ReserveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		items   []domain.StockItem
		wantErr error
	}{
		{"unknown product", []domain.StockItem{{ProductCode: "MOVIES", Quantity: 1}, {ProductCode: "GAMES", Quantity: 1}}, domain.ErrUnknownProduct},
		{"not enough", []domain.StockItem{{ProductCode: "MOVIES", Quantity: 1}, {ProductCode: "BOOKS", Quantity: 3}}, domain.ErrInsufficientStock},
		{"repeated product adds up", []domain.StockItem{{ProductCode: "BOOKS", Quantity: 2}, {ProductCode: "BOOKS", Quantity: 1}}, domain.ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestRepo(t)

			_, err := repo.Reserve(ctx, "O1", "T1", tt.items, at)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, 5, stock(t, repo, "MOVIES"))
			assert.Equal(t, 2, stock(t, repo, "BOOKS"))
			exists, err := repo.ExistsByOrderIDAndTransactionID(ctx, "O1", "T1")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestRepository_ReleaseRestoresOnce(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	_, err := repo.Reserve(ctx, "O1", "T1", []domain.StockItem{{ProductCode: "MUSIC", Quantity: 4}}, at)
	require.NoError(t, err)
	assert.Equal(t, 5, stock(t, repo, "MUSIC"))

	for i := 0; i < 3; i++ {
		found, err := repo.Release(ctx, "O1", "T1", at.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, found)
	}
	assert.Equal(t, 9, stock(t, repo, "MUSIC"))

	res, err := repo.FindByOrderIDAndTransactionID(ctx, "O1", "T1")
	require.NoError(t, err)
	assert.True(t, res.Released)
}

func TestRepository_ReleaseWithoutReservationStoresMarker(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	found, err := repo.Release(ctx, "O1", "T1", at)
	require.NoError(t, err)
	assert.False(t, found)

	res, err := repo.FindByOrderIDAndTransactionID(ctx, "O1", "T1")
	require.NoError(t, err)
	assert.True(t, res.Released)
	assert.Empty(t, res.Lines)

	// The marker blocks a forward step arriving after its compensation.
	_, err = repo.Reserve(ctx, "O1", "T1", []domain.StockItem{{ProductCode: "MUSIC", Quantity: 1}}, at)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Equal(t, 9, stock(t, repo, "MUSIC"))
}

func TestRepository_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)
	mr.Close()

	_, err := repo.ExistsByOrderIDAndTransactionID(ctx, "O1", "T1")
	assert.Error(t, err)
	_, err = repo.Reserve(ctx, "O1", "T1", []domain.StockItem{{ProductCode: "MUSIC", Quantity: 1}}, at)
	assert.Error(t, err)
	_, err = repo.Release(ctx, "O1", "T1", at)
	assert.Error(t, err)
}
