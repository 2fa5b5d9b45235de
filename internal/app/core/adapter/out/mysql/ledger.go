package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:varchar(191);not null"`
	// NameKey 名稱唯一鍵；utf8mb4_bin 讓比較區分大小寫，不分大小寫時寫入 case-folded 名稱
	NameKey   string `gorm:"column:name_key;type:varchar(191) COLLATE utf8mb4_bin;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表
type sqlTransaction struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	RefID           []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Transaction.RefID
	AccountID       int64           `gorm:"not null;index"`
	Type            uint8           `gorm:"not null"`
	Settled         bool            `gorm:"not null"`
	Description     string          `gorm:"type:varchar(255);not null;index"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Counterparty    string          `gorm:"type:varchar(255);not null"`
	TransactionDate domain.Date     `gorm:"type:date;not null"`
	PaymentDate     domain.Date     `gorm:"type:date;not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// balanceRow 餘額查詢結果
type balanceRow struct {
	AccountID   int64
	AccountName string
	Balance     decimal.Decimal
}

// balanceQuery 與 domain.Contribution 相同的規則：
// 只計入已實現、付款日不晚於參考日、未刪除的交易，收入為正、支出為負
const balanceQuery = `
SELECT a.id AS account_id, a.name AS account_name,
       COALESCE(SUM(CASE WHEN t.type = ? THEN t.amount ELSE -t.amount END), 0) AS balance
FROM accounts a
LEFT JOIN transactions t
       ON t.account_id = a.id
      AND t.settled = TRUE
      AND t.payment_date <= ?
      AND t.deleted_at IS NULL
GROUP BY a.id, a.name
ORDER BY a.id`

// MySQLLedger 以 MySQL 實作的帳本
// 所有寫入都在 DB Transaction 內完成，並以 SELECT ... FOR UPDATE 鎖定相關帳戶
type MySQLLedger struct {
	client     *mysql.Client
	nameKey    domain.NameKey
	softDelete bool
}

// Option 定義 MySQLLedger 的配置選項函數
type Option func(*MySQLLedger)

// WithNameKey 設定帳戶名稱唯一性的比較方式
func WithNameKey(key domain.NameKey) Option {
	return func(l *MySQLLedger) { l.nameKey = key }
}

// WithSoftDelete 刪除交易時只寫入 deleted_at
func WithSoftDelete(soft bool) Option {
	return func(l *MySQLLedger) { l.softDelete = soft }
}

// NewMySQLLedger 建立 MySQLLedger
func NewMySQLLedger(client *mysql.Client, opts ...Option) *MySQLLedger {
	l := &MySQLLedger{
		client:  client,
		nameKey: domain.ExactName,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Migrate 建立或更新資料表
func (l *MySQLLedger) Migrate(ctx context.Context) error {
	return l.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{})
}

func (l *MySQLLedger) db(ctx context.Context) *gorm.DB {
	return l.client.DB().WithContext(ctx)
}

// CreateAccount 建立帳戶，名稱唯一性由 name_key 唯一索引保證
func (l *MySQLLedger) CreateAccount(ctx context.Context, account *domain.Account) error {
	row := sqlAccount{Name: account.Name, NameKey: l.nameKey(account.Name)}
	if err := l.db(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateAccountName
		}
		return fmt.Errorf("insert account: %w", err)
	}
	*account = *row.toDomain()
	return nil
}

// RenameAccount 修改帳戶名稱
func (l *MySQLLedger) RenameAccount(ctx context.Context, id int64, name string) (*domain.Account, error) {
	var result *domain.Account
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockAccount(tx, id)
		if err != nil {
			return err
		}
		row.Name = name
		row.NameKey = l.nameKey(name)
		if err := tx.Save(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateAccountName
			}
			return fmt.Errorf("update account: %w", err)
		}
		result = row.toDomain()
		return nil
	})
	return result, err
}

// GetAccount 依 ID 取得帳戶
func (l *MySQLLedger) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var row sqlAccount
	if err := l.db(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// FindAccountByName 依名稱取得帳戶
func (l *MySQLLedger) FindAccountByName(ctx context.Context, name string) (*domain.Account, error) {
	var row sqlAccount
	if err := l.db(ctx).Where("name_key = ?", l.nameKey(name)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListAccounts 列出所有帳戶
func (l *MySQLLedger) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := l.db(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// DeleteAccount 刪除沒有交易的帳戶
func (l *MySQLLedger) DeleteAccount(ctx context.Context, id int64) error {
	return l.db(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockAccount(tx, id)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&sqlTransaction{}).Where("account_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrAccountInUse
		}
		return tx.Delete(row).Error
	})
}

// CreateTransaction 新增交易
//
// 參數:
//
//	ctx: 上下文
//	tran: 已通過欄位驗證的交易
//
// 回傳:
//
//	*domain.Transaction: 儲存後的交易；ref_id 已存在時回傳既有交易
//	error: 帳戶不存在或資料庫錯誤
func (l *MySQLLedger) CreateTransaction(ctx context.Context, tran *domain.Transaction) (*domain.Transaction, error) {
	var result *domain.Transaction
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		// 先檢查是否有這筆交易記錄
		if tran.RefID != uuid.Nil {
			existing, err := findByRef(tx, tran.RefID)
			if err != nil {
				return err
			}
			if existing != nil {
				result = existing
				return nil
			}
		}
		// 悲觀鎖：與同帳戶的其他寫入序列化
		if _, err := lockAccount(tx, tran.AccountID); err != nil {
			return err
		}
		row := fromDomain(tran)
		row.ID = 0
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		result = row.toDomain()
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && tran.RefID != uuid.Nil {
		// 並發重送同一個 Idempotency-Key，回傳先寫入的那筆
		existing, findErr := findByRef(l.db(ctx), tran.RefID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateTransaction 鎖定交易列與新舊帳戶後套用 mutate 並寫回
func (l *MySQLLedger) UpdateTransaction(ctx context.Context, id int64, mutate func(*domain.Transaction) error) (*domain.Transaction, error) {
	var result *domain.Transaction
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockTransaction(tx, id)
		if err != nil {
			return err
		}
		current := row.toDomain()
		updated := current.Clone()
		if err := mutate(updated); err != nil {
			return err
		}
		updated.ID = current.ID
		updated.RefID = current.RefID
		updated.CreatedAt = current.CreatedAt

		ids := domain.LockIDs(current.AccountID, updated.AccountID)
		var accounts []sqlAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).
			Order("id").
			Find(&accounts).Error; err != nil {
			return err
		}
		if !containsAccount(accounts, updated.AccountID) {
			return domain.ErrAccountNotFound
		}

		next := fromDomain(updated)
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		result = next.toDomain()
		return nil
	})
	return result, err
}

// DeleteTransaction 刪除交易 (依設定為軟刪除或實體刪除)
func (l *MySQLLedger) DeleteTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	var result *domain.Transaction
	err := l.db(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockTransaction(tx, id)
		if err != nil {
			return err
		}
		result = row.toDomain()
		if !l.softDelete {
			return tx.Unscoped().Delete(row).Error
		}
		// 釋放 ref_id，讓同一個 key 之後可以重新建立
		if err := tx.Model(row).Update("ref_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(row).Error
	})
	return result, err
}

// GetTransaction 依 ID 取得交易
func (l *MySQLLedger) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	var row sqlTransaction
	if err := l.db(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListTransactions 依條件列出交易
func (l *MySQLLedger) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	query := l.db(ctx).Order("id")
	if filter.Description != "" {
		query = query.Where("description = ?", filter.Description)
	}
	if filter.AccountID != 0 {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	var rows []sqlTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// Balances 以單一 SQL 聚合計算餘額，DECIMAL 運算不會有浮點誤差
func (l *MySQLLedger) Balances(ctx context.Context, asOf domain.Date) ([]domain.Balance, error) {
	var rows []balanceRow
	if err := l.db(ctx).Raw(balanceQuery, uint8(domain.TransactionTypeIncome), asOf).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Balance, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Balance{AccountID: r.AccountID, AccountName: r.AccountName, Amount: r.Balance})
	}
	return out, nil
}

// Ping 檢查資料庫連線
func (l *MySQLLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx)
}

func lockAccount(tx *gorm.DB, id int64) (*sqlAccount, error) {
	var row sqlAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func lockTransaction(tx *gorm.DB, id int64) (*sqlTransaction, error) {
	var row sqlTransaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func findByRef(tx *gorm.DB, ref uuid.UUID) (*domain.Transaction, error) {
	var row sqlTransaction
	err := tx.Where("ref_id = ?", ref[:]).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func containsAccount(accounts []sqlAccount, id int64) bool {
	for _, a := range accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (a *sqlAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:        a.ID,
		Name:      a.Name,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromDomain(t *domain.Transaction) *sqlTransaction {
	row := &sqlTransaction{
		ID:              t.ID,
		AccountID:       t.AccountID,
		Type:            uint8(t.Type),
		Settled:         t.Settled,
		Description:     t.Description,
		Amount:          t.Amount,
		Counterparty:    t.Counterparty,
		TransactionDate: t.TransactionDate,
		PaymentDate:     t.PaymentDate,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.RefID != uuid.Nil {
		ref := t.RefID
		row.RefID = ref[:]
	}
	return row
}

func (r *sqlTransaction) toDomain() *domain.Transaction {
	t := &domain.Transaction{
		ID:              r.ID,
		AccountID:       r.AccountID,
		Type:            domain.TransactionType(r.Type),
		Settled:         r.Settled,
		Description:     r.Description,
		Amount:          r.Amount,
		Counterparty:    r.Counterparty,
		TransactionDate: r.TransactionDate,
		PaymentDate:     r.PaymentDate,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if ref, err := uuid.FromBytes(r.RefID); err == nil {
		t.RefID = ref
	}
	if r.DeletedAt.Valid {
		t.DeletedAt = r.DeletedAt.Time
	}
	return t
}

var _ usecase.Ledger = (*MySQLLedger)(nil)
