package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/orchestrated-sagas/internal/product-validation-service/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "pv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository_CatalogIsSeeded(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	for _, code := range Catalog {
		ok, err := repo.ExistsByCode(ctx, code)
		require.NoError(t, err)
		assert.True(t, ok, code)
	}
	ok, err := repo.ExistsByCode(ctx, "GAMES")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_ReopenKeepsCatalogUnique(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pv.db")
	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()

	var n int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n))
	assert.Equal(t, len(Catalog), n)
}

func TestRepository_ValidationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.FindByOrderIDAndTransactionID(ctx, "O1", "T1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	v := &domain.Validation{OrderID: "O1", TransactionID: "T1", Success: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Insert(ctx, v))
	assert.NotZero(t, v.ID)

	exists, err := repo.ExistsByOrderIDAndTransactionID(ctx, "O1", "T1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &domain.Validation{OrderID: "O1", TransactionID: "T1", CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, repo.Insert(ctx, dup), domain.ErrDuplicate)

	got, err := repo.FindByOrderIDAndTransactionID(ctx, "O1", "T1")
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.True(t, now.Equal(got.CreatedAt))

	got.Success = false
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.FindByOrderIDAndTransactionID(ctx, "O1", "T1")
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.True(t, now.Add(time.Minute).Equal(got.UpdatedAt))
}

func TestRepository_TimestampsAreFixedWidth(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	whole := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	frac := whole.Add(500 * time.Millisecond)

	require.NoError(t, repo.Insert(ctx, &domain.Validation{OrderID: "O1", TransactionID: "T1", CreatedAt: whole, UpdatedAt: whole}))
	require.NoError(t, repo.Insert(ctx, &domain.Validation{OrderID: "O2", TransactionID: "T2", CreatedAt: frac, UpdatedAt: frac}))

	var stored string
	require.NoError(t, repo.db.QueryRowContext(ctx,
		`SELECT created_at FROM validations WHERE order_id = 'O1'`).Scan(&stored))
	assert.Equal(t, "2024-01-01T00:00:01.000000000Z", stored)

	var first string
	require.NoError(t, repo.db.QueryRowContext(ctx,
		`SELECT order_id FROM validations ORDER BY created_at LIMIT 1`).Scan(&first))
	assert.Equal(t, "O1", first)

	got, err := repo.FindByOrderIDAndTransactionID(ctx, "O2", "T2")
	require.NoError(t, err)
	assert.True(t, frac.Equal(got.CreatedAt))
}
