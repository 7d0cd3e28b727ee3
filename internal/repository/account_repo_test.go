package repository

import (
	"context"
	"sync"
	"testing"

	"recsys/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_Deduct(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	testutil.SeedAccount(t, db, 1, "20")

	account, err := repo.Deduct(ctx, nil, 1, decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(5)), account.Balance.String())
	assert.Equal(t, 1, account.Version)

	_, err = repo.Deduct(ctx, nil, 1, decimal.NewFromInt(6))
	assert.ErrorIs(t, err, ErrBalanceNotEnough)
	assert.True(t, testutil.Balance(t, db, 1).Equal(decimal.NewFromInt(5)))

	_, err = repo.Deduct(ctx, nil, 99, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_DeductFractional(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAccountRepository(db)
	testutil.SeedAccount(t, db, 1, "10.50")

	account, err := repo.Deduct(context.Background(), nil, 1, decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("10.25")), account.Balance.String())
}

func TestAccountRepository_ConcurrentDeductNeverNegative(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAccountRepository(db)
	testutil.SeedAccount(t, db, 1, "50")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Deduct(context.Background(), nil, 1, decimal.NewFromInt(10)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.True(t, testutil.Balance(t, db, 1).IsZero())
}

func TestAccountRepository_GetOrCreate(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, 3)
	require.NoError(t, err)
	assert.True(t, first.Balance.IsZero())

	second, err := repo.GetOrCreate(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAccountRepository_Increase(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()
	testutil.SeedAccount(t, db, 1, "1")

	account, err := repo.Increase(ctx, nil, 1, decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("3.5")))

	_, err = repo.Increase(ctx, nil, 2, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
