package service

import (
	"context"
	"testing"

	"recsys/internal/model"
	"recsys/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_DepositRejectsNonPositive(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewAccountService(db)
	ctx := context.Background()
	testutil.SeedAccount(t, db, 1, "7")

	for _, amount := range []string{"0", "-5"} {
		_, err := svc.Deposit(ctx, 1, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrValidation, amount)
	}

	assert.True(t, testutil.Balance(t, db, 1).Equal(decimal.NewFromInt(7)))

	var count int64
	require.NoError(t, db.Model(&model.AccountTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAccountService_DepositCreatesAccount(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewAccountService(db)
	ctx := context.Background()

	account, err := svc.Deposit(ctx, 3, decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("12.5")))

	transactions, total, err := svc.ListTransactions(ctx, 3, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.TransactionTypeDeposit, transactions[0].Type)
	assert.True(t, transactions[0].BalanceBefore.IsZero())
	assert.True(t, transactions[0].BalanceAfter.Equal(decimal.RequireFromString("12.5")))
}

func TestAccountService_Debit(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewAccountService(db)
	ctx := context.Background()
	testutil.SeedAccount(t, db, 1, "20")

	account, err := svc.Debit(ctx, nil, 1, decimal.NewFromInt(10), "prediction:1", "test")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(10)))

	_, err = svc.Debit(ctx, nil, 1, decimal.NewFromInt(11), "prediction:2", "test")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, testutil.Balance(t, db, 1).Equal(decimal.NewFromInt(10)))

	_, err = svc.Debit(ctx, nil, 1, decimal.Zero, "prediction:3", "test")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Debit(ctx, nil, 42, decimal.NewFromInt(1), "prediction:4", "test")
	assert.ErrorIs(t, err, ErrNotFound)

	transactions, total, err := svc.ListTransactions(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.True(t, transactions[0].Amount.Equal(decimal.NewFromInt(-10)))
	assert.True(t, transactions[0].BalanceBefore.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "prediction:1", transactions[0].Reference)
}

func TestAccountService_GetBalanceMissingAccount(t *testing.T) {
	svc := NewAccountService(testutil.NewDB(t))

	balance, err := svc.GetBalance(context.Background(), 77)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestAccountService_RejectsUnrepresentableAmounts(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewAccountService(db)
	ctx := context.Background()
	testutil.SeedAccount(t, db, 1, "20")

	for _, amount := range []string{"0.00001", "0.00005", "10000000000000000"} {
		_, err := svc.Deposit(ctx, 1, decimal.RequireFromString(amount))
		assert.ErrorIs(t, err, ErrValidation, amount)

		_, err = svc.Debit(ctx, nil, 1, decimal.RequireFromString(amount), "prediction:1", "test")
		assert.ErrorIs(t, err, ErrValidation, amount)
	}

	assert.True(t, testutil.Balance(t, db, 1).Equal(decimal.NewFromInt(20)))

	var count int64
	require.NoError(t, db.Model(&model.AccountTransaction{}).Count(&count).Error)
	assert.Zero(t, count)

	account, err := svc.Deposit(ctx, 1, decimal.RequireFromString("0.00010"))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("20.0001")))
}
