package service

import (
	"context"
	"errors"
	"fmt"

	"recsys/internal/config"
	"recsys/internal/model"
	"recsys/internal/repository"
	"recsys/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountService is the ledger: the only code allowed to move a balance.
// Debit and Credit commit before returning when called with a nil tx;
// otherwise they join the caller's transaction.
type AccountService struct {
	db              *gorm.DB
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		db:              db,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetOrCreate(ctx, userID)
}

func (s *AccountService) Deposit(ctx context.Context, userID int64, amount decimal.Decimal) (*model.Account, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	return s.Credit(ctx, nil, userID, amount, "deposit", model.TransactionTypeDeposit, "deposit")
}

// Debit fails with ErrInsufficientFunds, leaving the balance untouched, when
// the account holds less than amount.
func (s *AccountService) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, reference, remark string) (*model.Account, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	var after *model.Account
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		account, err := s.accountRepo.Deduct(ctx, tx, userID, amount)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientFunds
			}
			if errors.Is(err, repository.ErrAccountNotFound) {
				return fmt.Errorf("%w: account of user %d", ErrNotFound, userID)
			}
			return fmt.Errorf("deduct balance: %w", err)
		}

		if err := s.journal(ctx, tx, account, amount.Neg(), reference, model.TransactionTypePrediction, remark); err != nil {
			return err
		}
		after = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *AccountService) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount decimal.Decimal, reference, txType, remark string) (*model.Account, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	var after *model.Account
	err := s.inTx(ctx, tx, func(tx *gorm.DB) error {
		account, err := s.accountRepo.Increase(ctx, tx, userID, amount)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return fmt.Errorf("%w: account of user %d", ErrNotFound, userID)
			}
			return fmt.Errorf("increase balance: %w", err)
		}

		if err := s.journal(ctx, tx, account, amount, reference, txType, remark); err != nil {
			return err
		}
		after = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (s *AccountService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.AccountTransaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// journal records a balance change; after is the account state once delta
// has been applied.
func (s *AccountService) journal(ctx context.Context, tx *gorm.DB, after *model.Account, delta decimal.Decimal, reference, txType, remark string) error {
	transaction := &model.AccountTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        after.UserID,
		Reference:     reference,
		Amount:        delta,
		Type:          txType,
		BalanceBefore: after.Balance.Sub(delta),
		BalanceAfter:  after.Balance,
		Remark:        remark,
	}
	if err := s.transactionRepo.Create(ctx, tx, transaction); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// checkAmount rejects amounts a decimal(20,4) balance column would round or
// overflow, so the journal always matches the balance movement.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(config.AmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrValidation, config.AmountScale)
	}
	if amount.GreaterThanOrEqual(config.MaxAmount) {
		return fmt.Errorf("%w: amount must be below %s", ErrValidation, config.MaxAmount)
	}
	return nil
}

func (s *AccountService) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}
