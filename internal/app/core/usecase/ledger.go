package usecase

import (
	"context"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的儲存介面 (Driven Port)
//
// 所有實作都必須保證：
//   - 帳戶名稱的檢查與寫入為單一原子操作
//   - 交易的新增/修改/刪除在回傳前即已提交，之後的 Balances 立即可見
type Ledger interface {
	// CreateAccount 建立帳戶並回填 ID
	CreateAccount(ctx context.Context, account *domain.Account) error
	// RenameAccount 修改帳戶名稱
	RenameAccount(ctx context.Context, id int64, name string) (*domain.Account, error)
	// GetAccount 依 ID 取得帳戶
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// FindAccountByName 依名稱取得帳戶，找不到回傳 (nil, nil)
	FindAccountByName(ctx context.Context, name string) (*domain.Account, error)
	// ListAccounts 列出所有帳戶 (依 ID 排序)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	// DeleteAccount 刪除沒有交易的帳戶
	DeleteAccount(ctx context.Context, id int64) error

	// CreateTransaction 新增交易並回填 ID；RefID 重複時回傳先前建立的交易
	CreateTransaction(ctx context.Context, tran *domain.Transaction) (*domain.Transaction, error)
	// UpdateTransaction 在同一個臨界區內讀取、修改、寫回交易
	UpdateTransaction(ctx context.Context, id int64, mutate func(*domain.Transaction) error) (*domain.Transaction, error)
	// DeleteTransaction 刪除交易並回傳被刪除的內容
	DeleteTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	// GetTransaction 依 ID 取得交易
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	// ListTransactions 依條件列出交易 (依 ID 排序)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)

	// Balances 計算每個帳戶在 asOf 當天的餘額
	Balances(ctx context.Context, asOf domain.Date) ([]domain.Balance, error)

	// Ping 檢查儲存層是否可用
	Ping(ctx context.Context) error
}
