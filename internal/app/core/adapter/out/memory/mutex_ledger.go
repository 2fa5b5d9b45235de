package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

// walOp WAL 紀錄的操作類型
type walOp string

const (
	opCreateAccount     walOp = "account.create"
	opRenameAccount     walOp = "account.rename"
	opDeleteAccount     walOp = "account.delete"
	opCreateTransaction walOp = "transaction.create"
	opUpdateTransaction walOp = "transaction.update"
	opDeleteTransaction walOp = "transaction.delete"
	// opSequence 壓縮後保留 ID 計數器，已刪除的 ID 不會被重新使用
	opSequence walOp = "sequence"
)

// walRecord 一筆已驗證、可直接套用的狀態變更
type walRecord struct {
	Op          walOp               `json:"op"`
	Account     *domain.Account     `json:"account,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
	ID          int64               `json:"id,omitempty"`
	Soft        bool                `json:"soft,omitempty"`
	Sequence    *walSequence        `json:"sequence,omitempty"`
	At          time.Time           `json:"at"`
}

type walSequence struct {
	Account     int64 `json:"account"`
	Transaction int64 `json:"transaction"`
}

// MutexLedger 是一個使用 Mutex 實現的記憶體帳本
//
// 結構:
//
//	mu: 單一讀寫鎖，所有寫入 (含名稱檢查) 都在寫鎖內完成
//	accounts / names: 帳戶資料與名稱索引
//	transactions: 交易資料 (軟刪除時保留墓碑)
//	processedRefs: 已處理過的 Idempotency-Key
//	wal: Write-Ahead Log 實例，可為 nil
type MutexLedger struct {
	mu sync.RWMutex

	accounts     map[int64]*domain.Account
	names        map[string]int64
	transactions map[int64]*domain.Transaction
	// 已處理過的交易
	processedRefs map[uuid.UUID]int64

	nextAccountID     int64
	nextTransactionID int64

	nameKey    domain.NameKey
	softDelete bool
	now        func() time.Time

	// Write-Ahead Logging
	wal *wal.WAL
}

// Option 定義 MutexLedger 的配置選項函數
type Option func(*MutexLedger)

// WithNameKey 設定帳戶名稱唯一性的比較方式
func WithNameKey(key domain.NameKey) Option {
	return func(m *MutexLedger) { m.nameKey = key }
}

// WithSoftDelete 刪除交易時保留墓碑而不移除
func WithSoftDelete(soft bool) Option {
	return func(m *MutexLedger) { m.softDelete = soft }
}

// WithClock 設定時鐘
func WithClock(now func() time.Time) Option {
	return func(m *MutexLedger) { m.now = now }
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 代表不持久化
//	opts: 配置選項
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(w *wal.WAL, opts ...Option) (*MutexLedger, error) {
	ledger := &MutexLedger{
		accounts:      make(map[int64]*domain.Account),
		names:         make(map[string]int64),
		transactions:  make(map[int64]*domain.Transaction),
		processedRefs: make(map[uuid.UUID]int64),
		nameKey:       domain.ExactName,
		now:           time.Now,
		wal:           w,
	}
	for _, opt := range opts {
		opt(ledger)
	}
	if err := ledger.recoverFromWAL(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMutexLedger 呼叫，無需 Lock (單執行緒)
func (m *MutexLedger) recoverFromWAL() error {
	if m.wal == nil {
		return nil
	}
	return m.wal.ReadAll(func(raw json.RawMessage) error {
		var rec walRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		return m.apply(&rec)
	})
}

// commit 先寫 WAL 再更新記憶體 (呼叫端必須持有寫鎖)
func (m *MutexLedger) commit(rec *walRecord) error {
	rec.At = m.now()
	if m.wal != nil {
		if err := m.wal.Write(rec); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWALWriteFailed, err)
		}
	}
	return m.apply(rec)
}

// apply 將紀錄套用到記憶體狀態；恢復時也走這裡，因此不可再做業務檢查
func (m *MutexLedger) apply(rec *walRecord) error {
	switch rec.Op {
	case opCreateAccount, opRenameAccount:
		a := *rec.Account
		if old, ok := m.accounts[a.ID]; ok {
			delete(m.names, m.nameKey(old.Name))
		}
		m.accounts[a.ID] = &a
		m.names[m.nameKey(a.Name)] = a.ID
		if a.ID > m.nextAccountID {
			m.nextAccountID = a.ID
		}
	case opDeleteAccount:
		if old, ok := m.accounts[rec.ID]; ok {
			delete(m.names, m.nameKey(old.Name))
			delete(m.accounts, rec.ID)
		}
	case opCreateTransaction, opUpdateTransaction:
		t := rec.Transaction.Clone()
		m.transactions[t.ID] = t
		if t.RefID != uuid.Nil {
			m.processedRefs[t.RefID] = t.ID
		}
		if t.ID > m.nextTransactionID {
			m.nextTransactionID = t.ID
		}
	case opDeleteTransaction:
		t, ok := m.transactions[rec.ID]
		if !ok {
			return nil
		}
		if rec.Soft {
			t.DeletedAt = rec.At
			return nil
		}
		if t.RefID != uuid.Nil {
			delete(m.processedRefs, t.RefID)
		}
		delete(m.transactions, rec.ID)
	case opSequence:
		m.nextAccountID = max(m.nextAccountID, rec.Sequence.Account)
		m.nextTransactionID = max(m.nextTransactionID, rec.Sequence.Transaction)
	default:
		return fmt.Errorf("unknown wal op %q", rec.Op)
	}
	return nil
}

// CreateAccount 建立帳戶 (名稱檢查與寫入在同一把寫鎖內)
func (m *MutexLedger) CreateAccount(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.names[m.nameKey(account.Name)]; exists {
		return domain.ErrDuplicateAccountName
	}
	now := m.now()
	created := domain.Account{
		ID:        m.nextAccountID + 1,
		Name:      account.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.commit(&walRecord{Op: opCreateAccount, Account: &created}); err != nil {
		return err
	}
	*account = created
	return nil
}

// RenameAccount 修改帳戶名稱，名稱不可與其他帳戶重複
func (m *MutexLedger) RenameAccount(ctx context.Context, id int64, name string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	if owner, exists := m.names[m.nameKey(name)]; exists && owner != id {
		return nil, domain.ErrDuplicateAccountName
	}
	renamed := *current
	renamed.Name = name
	renamed.UpdatedAt = m.now()
	if err := m.commit(&walRecord{Op: opRenameAccount, Account: &renamed}); err != nil {
		return nil, err
	}
	return &renamed, nil
}

// GetAccount 依 ID 取得帳戶
func (m *MutexLedger) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// FindAccountByName 依名稱取得帳戶
func (m *MutexLedger) FindAccountByName(ctx context.Context, name string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.names[m.nameKey(name)]
	if !ok {
		return nil, nil
	}
	cp := *m.accounts[id]
	return &cp, nil
}

// ListAccounts 列出所有帳戶
func (m *MutexLedger) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountsLocked(), nil
}

func (m *MutexLedger) accountsLocked() []*domain.Account {
	out := make([]*domain.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteAccount 刪除帳戶；仍有交易時回傳 ErrAccountInUse
func (m *MutexLedger) DeleteAccount(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	for _, t := range m.transactions {
		if t.AccountID == id && !t.Deleted() {
			return domain.ErrAccountInUse
		}
	}
	return m.commit(&walRecord{Op: opDeleteAccount, ID: id})
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
//	*domain.Transaction: 儲存後的交易 (含 ID)；RefID 已處理過則回傳原交易
//	error: 帳戶不存在或 WAL 寫入失敗
func (m *MutexLedger) CreateTransaction(ctx context.Context, tran *domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tran.RefID != uuid.Nil {
		if id, ok := m.processedRefs[tran.RefID]; ok {
			if existing, ok := m.transactions[id]; ok && !existing.Deleted() {
				return existing.Clone(), nil
			}
		}
	}
	if _, ok := m.accounts[tran.AccountID]; !ok {
		return nil, domain.ErrAccountNotFound
	}

	created := tran.Clone()
	created.ID = m.nextTransactionID + 1
	created.CreatedAt = m.now()
	created.UpdatedAt = created.CreatedAt
	created.DeletedAt = time.Time{}
	if err := m.commit(&walRecord{Op: opCreateTransaction, Transaction: created}); err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// UpdateTransaction 在寫鎖內讀取、修改並寫回交易，避免並發更新互相覆蓋
func (m *MutexLedger) UpdateTransaction(ctx context.Context, id int64, mutate func(*domain.Transaction) error) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.transactions[id]
	if !ok || current.Deleted() {
		return nil, domain.ErrTransactionNotFound
	}
	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	// 不允許修改的欄位
	updated.ID = current.ID
	updated.RefID = current.RefID
	updated.CreatedAt = current.CreatedAt
	if _, ok := m.accounts[updated.AccountID]; !ok {
		return nil, domain.ErrAccountNotFound
	}
	updated.UpdatedAt = m.now()
	if err := m.commit(&walRecord{Op: opUpdateTransaction, Transaction: updated}); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// DeleteTransaction 刪除交易
func (m *MutexLedger) DeleteTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.transactions[id]
	if !ok || current.Deleted() {
		return nil, domain.ErrTransactionNotFound
	}
	deleted := current.Clone()
	if err := m.commit(&walRecord{Op: opDeleteTransaction, ID: id, Soft: m.softDelete}); err != nil {
		return nil, err
	}
	return deleted, nil
}

// GetTransaction 依 ID 取得交易
func (m *MutexLedger) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transactions[id]
	if !ok || t.Deleted() {
		return nil, domain.ErrTransactionNotFound
	}
	return t.Clone(), nil
}

// ListTransactions 依條件列出交易，依 ID (即建立順序) 排序
func (m *MutexLedger) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Transaction, 0)
	for _, t := range m.transactions {
		if t.Deleted() || !filter.Match(t) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Balances 在讀鎖內對目前已提交的狀態計算餘額
func (m *MutexLedger) Balances(ctx context.Context, asOf domain.Date) ([]domain.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := make([]*domain.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		txs = append(txs, t)
	}
	return domain.ComputeBalances(m.accountsLocked(), txs, asOf), nil
}

// WriteSnapshot 將目前狀態寫成最精簡的 WAL (每個帳戶、交易各一筆，外加 ID 計數器)
// 用於離線壓縮：新檔案重播後的狀態與目前相同
func (m *MutexLedger) WriteSnapshot(w *wal.WAL) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	at := m.now()
	for _, a := range m.accountsLocked() {
		if err := w.Write(&walRecord{Op: opCreateAccount, Account: a, At: at}); err != nil {
			return err
		}
	}
	ids := make([]int64, 0, len(m.transactions))
	for id := range m.transactions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := w.Write(&walRecord{Op: opCreateTransaction, Transaction: m.transactions[id], At: at}); err != nil {
			return err
		}
	}
	return w.Write(&walRecord{
		Op:       opSequence,
		Sequence: &walSequence{Account: m.nextAccountID, Transaction: m.nextTransactionID},
		At:       at,
	})
}

// Ping 記憶體帳本永遠可用
func (m *MutexLedger) Ping(ctx context.Context) error {
	return nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
