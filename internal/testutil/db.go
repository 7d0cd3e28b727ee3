package testutil

import (
	"path/filepath"
	"testing"

	"recsys/internal/infrastructure/database"
	"recsys/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated SQLite database private to the test. A single
// connection is used so transactions serialize the way row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recsys.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func SeedAccount(t *testing.T, db *gorm.DB, userID int64, balance string) *model.Account {
	t.Helper()
	account := &model.Account{UserID: userID, Balance: decimal.RequireFromString(balance)}
	require.NoError(t, db.Create(account).Error)
	return account
}

func SeedItem(t *testing.T, db *gorm.DB, item model.Item) *model.Item {
	t.Helper()
	if item.Name == "" {
		item.Name = "Item"
	}
	if item.Description == "" {
		item.Description = item.Name
	}
	if item.Price.IsZero() {
		item.Price = decimal.NewFromInt(50)
	}
	require.NoError(t, db.Create(&item).Error)
	return &item
}

func Balance(t *testing.T, db *gorm.DB, userID int64) decimal.Decimal {
	t.Helper()
	var account model.Account
	require.NoError(t, db.Where("user_id = ?", userID).First(&account).Error)
	return account.Balance
}

func DeleteItem(t *testing.T, db *gorm.DB, id int64) {
	t.Helper()
	require.NoError(t, db.Where("id = ?", id).Delete(&model.Item{}).Error)
}

// OutboxMessages returns the outbox rows of one prediction, oldest first.
func OutboxMessages(t *testing.T, db *gorm.DB, predictionID int64) []model.OutboxMessage {
	t.Helper()
	var messages []model.OutboxMessage
	require.NoError(t, db.Where("aggregate_id = ?", predictionID).Order("id ASC").Find(&messages).Error)
	return messages
}

// Transactions returns the ledger rows carrying reference, oldest first.
func Transactions(t *testing.T, db *gorm.DB, reference string) []model.AccountTransaction {
	t.Helper()
	var transactions []model.AccountTransaction
	require.NoError(t, db.Where("reference = ?", reference).Order("id ASC").Find(&transactions).Error)
	return transactions
}
