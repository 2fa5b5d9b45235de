package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層
//
// 負責欄位驗證、決定參考日 (今天)，再交給 Ledger 執行
type CoreUseCase struct {
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
	loc    *time.Location
}

// Option 定義 CoreUseCase 的配置選項函數
type Option func(*CoreUseCase)

// WithLogger 設定 logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *CoreUseCase) {
		c.logger = logger
	}
}

// WithClock 設定時鐘 (測試時可固定時間)
func WithClock(now func() time.Time) Option {
	return func(c *CoreUseCase) {
		c.now = now
	}
}

// WithLocation 設定計算「今天」所用的時區
func WithLocation(loc *time.Location) Option {
	return func(c *CoreUseCase) {
		c.loc = loc
	}
}

// NewCoreUseCase 建立 CoreUseCase
func NewCoreUseCase(ledger Ledger, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger: ledger,
		logger: slog.Default(),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReferenceDate 回傳計算餘額用的參考日 (設定時區下的今天)
func (c *CoreUseCase) ReferenceDate() domain.Date {
	return domain.DateOf(c.now(), c.loc)
}

// Location 業務日期所屬的時區
func (c *CoreUseCase) Location() *time.Location {
	return c.loc
}

// CreateAccount 建立帳戶
func (c *CoreUseCase) CreateAccount(ctx context.Context, name string) (*domain.Account, error) {
	name, err := domain.ValidateAccountName(name)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{Name: name}
	if err := c.ledger.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "account created", slog.Int64("account_id", account.ID), slog.String("name", account.Name))
	return account, nil
}

// RenameAccount 修改帳戶名稱
func (c *CoreUseCase) RenameAccount(ctx context.Context, id int64, name string) (*domain.Account, error) {
	name, err := domain.ValidateAccountName(name)
	if err != nil {
		return nil, err
	}
	account, err := c.ledger.RenameAccount(ctx, id, name)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "account renamed", slog.Int64("account_id", id), slog.String("name", name))
	return account, nil
}

// GetAccount 取得帳戶
func (c *CoreUseCase) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return c.ledger.GetAccount(ctx, id)
}

// ListAccounts 列出帳戶；name 不為空時只回傳同名帳戶 (0 或 1 筆)
func (c *CoreUseCase) ListAccounts(ctx context.Context, name string) ([]*domain.Account, error) {
	if name == "" {
		return c.ledger.ListAccounts(ctx)
	}
	account, err := c.ledger.FindAccountByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return []*domain.Account{}, nil
	}
	return []*domain.Account{account}, nil
}

// DeleteAccount 刪除帳戶
func (c *CoreUseCase) DeleteAccount(ctx context.Context, id int64) error {
	if err := c.ledger.DeleteAccount(ctx, id); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "account deleted", slog.Int64("account_id", id))
	return nil
}

// CreateTransaction 驗證並新增交易
func (c *CoreUseCase) CreateTransaction(ctx context.Context, tran *domain.Transaction) (*domain.Transaction, error) {
	if err := tran.Validate(); err != nil {
		return nil, err
	}
	created, err := c.ledger.CreateTransaction(ctx, tran)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "transaction created", slog.String("tx", created.String()))
	return created, nil
}

// UpdateTransaction 套用部分更新，更新後的交易必須仍然合法
func (c *CoreUseCase) UpdateTransaction(ctx context.Context, id int64, patch domain.TransactionPatch) (*domain.Transaction, error) {
	updated, err := c.ledger.UpdateTransaction(ctx, id, func(t *domain.Transaction) error {
		patch.Apply(t)
		return t.Validate()
	})
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "transaction updated",
		slog.String("tx", updated.String()),
		slog.Bool("balance_affected", patch.AffectsBalance()))
	return updated, nil
}

// DeleteTransaction 刪除交易
func (c *CoreUseCase) DeleteTransaction(ctx context.Context, id int64) error {
	deleted, err := c.ledger.DeleteTransaction(ctx, id)
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "transaction deleted", slog.String("tx", deleted.String()))
	return nil
}

// GetTransaction 取得交易
func (c *CoreUseCase) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return c.ledger.GetTransaction(ctx, id)
}

// ListTransactions 依條件列出交易
func (c *CoreUseCase) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	return c.ledger.ListTransactions(ctx, filter)
}

// GetBalances 取得所有帳戶今天的餘額
func (c *CoreUseCase) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	asOf := c.ReferenceDate()
	balances, err := c.ledger.Balances(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("compute balances as of %s: %w", asOf, err)
	}
	return balances, nil
}

// Ping 檢查儲存層
func (c *CoreUseCase) Ping(ctx context.Context) error {
	return c.ledger.Ping(ctx)
}
