package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

var today = domain.NewDate(2026, time.October, 15)

func newLedger(t *testing.T, opts ...Option) *MutexLedger {
	t.Helper()
	l, err := NewMutexLedger(nil, opts...)
	require.NoError(t, err)
	return l
}

func mustAccount(t *testing.T, l *MutexLedger, name string) *domain.Account {
	t.Helper()
	a := &domain.Account{Name: name}
	require.NoError(t, l.CreateAccount(context.Background(), a))
	return a
}

func newTx(accountID int64, typ domain.TransactionType, settled bool, amount string, pay domain.Date) *domain.Transaction {
	return &domain.Transaction{
		AccountID:       accountID,
		Type:            typ,
		Settled:         settled,
		Description:     "Movimentacao",
		Amount:          decimal.RequireFromString(amount),
		Counterparty:    "Interessado",
		TransactionDate: pay,
		PaymentDate:     pay,
	}
}

func balanceOf(t *testing.T, l *MutexLedger, accountID int64, asOf domain.Date) string {
	t.Helper()
	balances, err := l.Balances(context.Background(), asOf)
	require.NoError(t, err)
	for _, b := range balances {
		if b.AccountID == accountID {
			return domain.FormatAmount(b.Amount)
		}
	}
	t.Fatalf("account %d not in balances", accountID)
	return ""
}

func TestCreateAccountUniqueName(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	a := mustAccount(t, l, "Conta para alterar")
	assert.Equal(t, int64(1), a.ID)

	err := l.CreateAccount(ctx, &domain.Account{Name: "Conta para alterar"})
	assert.ErrorIs(t, err, domain.ErrDuplicateAccountName)

	accounts, err := l.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	// 預設區分大小寫
	mustAccount(t, l, "CONTA PARA ALTERAR")
}

func TestCreateAccountCaseInsensitive(t *testing.T) {
	l := newLedger(t, WithNameKey(domain.FoldedName))
	mustAccount(t, l, "Conta")
	err := l.CreateAccount(context.Background(), &domain.Account{Name: "CONTA"})
	assert.ErrorIs(t, err, domain.ErrDuplicateAccountName)

	found, err := l.FindAccountByName(context.Background(), "conta")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Conta", found.Name)
}

func TestConcurrentCreateAccountSameName(t *testing.T) {
	l := newLedger(t)
	const n = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := l.CreateAccount(context.Background(), &domain.Account{Name: "mesma"}); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestRenameAccount(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "Conta para alterar")
	mustAccount(t, l, "Outra")

	renamed, err := l.RenameAccount(ctx, a.ID, "Conta alterada via API")
	require.NoError(t, err)
	assert.Equal(t, "Conta alterada via API", renamed.Name)

	// 改回自己原本的名稱也可以
	_, err = l.RenameAccount(ctx, a.ID, "Conta alterada via API")
	require.NoError(t, err)

	_, err = l.RenameAccount(ctx, a.ID, "Outra")
	assert.ErrorIs(t, err, domain.ErrDuplicateAccountName)

	_, err = l.RenameAccount(ctx, 99, "x")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	// 舊名稱釋放後可以再使用
	mustAccount(t, l, "Conta para alterar")
	found, err := l.FindAccountByName(ctx, "Conta para alterar")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, found.ID)
}

func TestTransactionLifecycleBalance(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")
	assert.Equal(t, "0.00", balanceOf(t, l, a.ID, today))

	income, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, true, "100.00", today))
	require.NoError(t, err)
	assert.Equal(t, "100.00", balanceOf(t, l, a.ID, today))

	expense, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeExpense, true, "30.00", today))
	require.NoError(t, err)
	assert.Equal(t, "70.00", balanceOf(t, l, a.ID, today))

	_, err = l.UpdateTransaction(ctx, expense.ID, func(tx *domain.Transaction) error {
		tx.Settled = false
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "100.00", balanceOf(t, l, a.ID, today))

	_, err = l.DeleteTransaction(ctx, income.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", balanceOf(t, l, a.ID, today))

	_, err = l.DeleteTransaction(ctx, income.ID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestFutureSettledPaymentCountsLater(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")
	_, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, true, "32.99", today.AddDays(1)))
	require.NoError(t, err)

	assert.Equal(t, "0.00", balanceOf(t, l, a.ID, today))
	assert.Equal(t, "32.99", balanceOf(t, l, a.ID, today.AddDays(1)))
}

func TestCreateTransactionUnknownAccount(t *testing.T) {
	l := newLedger(t)
	_, err := l.CreateTransaction(context.Background(), newTx(42, domain.TransactionTypeIncome, true, "1.00", today))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCreateTransactionIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")

	ref := uuid.New()
	first := newTx(a.ID, domain.TransactionTypeIncome, true, "10.00", today)
	first.RefID = ref
	created, err := l.CreateTransaction(ctx, first)
	require.NoError(t, err)

	retry := newTx(a.ID, domain.TransactionTypeIncome, true, "10.00", today)
	retry.RefID = ref
	again, err := l.CreateTransaction(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, "10.00", balanceOf(t, l, a.ID, today))
}

func TestUpdateTransactionMovesAccount(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")
	b := mustAccount(t, l, "B")

	created, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, true, "50.00", today))
	require.NoError(t, err)

	_, err = l.UpdateTransaction(ctx, created.ID, func(tx *domain.Transaction) error {
		tx.AccountID = b.ID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00", balanceOf(t, l, a.ID, today))
	assert.Equal(t, "50.00", balanceOf(t, l, b.ID, today))

	_, err = l.UpdateTransaction(ctx, created.ID, func(tx *domain.Transaction) error {
		tx.AccountID = 999
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assert.Equal(t, "50.00", balanceOf(t, l, b.ID, today))

	_, err = l.UpdateTransaction(ctx, 999, func(*domain.Transaction) error { return nil })
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestUpdateTransactionRejectedMutationKeepsState(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")
	created, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, true, "50.00", today))
	require.NoError(t, err)

	_, err = l.UpdateTransaction(ctx, created.ID, func(tx *domain.Transaction) error {
		tx.Settled = false
		return tx.Validate()
	})
	require.NoError(t, err)

	_, err = l.UpdateTransaction(ctx, created.ID, func(tx *domain.Transaction) error {
		tx.Settled = true
		tx.Amount = decimal.Zero
		return tx.Validate()
	})
	require.True(t, domain.IsValidation(err))

	got, err := l.GetTransaction(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, got.Settled)
	assert.Equal(t, "50.00", domain.FormatAmount(got.Amount))
}

func TestListTransactions(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")
	b := mustAccount(t, l, "B")

	for i, acct := range []int64{a.ID, b.ID, a.ID} {
		tx := newTx(acct, domain.TransactionTypeIncome, false, "1.00", today)
		if i == 1 {
			tx.Description = "Movimentacao 2, calculo saldo"
		}
		_, err := l.CreateTransaction(ctx, tx)
		require.NoError(t, err)
	}

	all, err := l.ListTransactions(ctx, domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].ID, all[1].ID, all[2].ID})

	byDesc, err := l.ListTransactions(ctx, domain.TransactionFilter{Description: "Movimentacao 2, calculo saldo"})
	require.NoError(t, err)
	require.Len(t, byDesc, 1)
	assert.Equal(t, b.ID, byDesc[0].AccountID)

	byAccount, err := l.ListTransactions(ctx, domain.TransactionFilter{AccountID: a.ID})
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")
	created, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, true, "1.00", today))
	require.NoError(t, err)

	assert.ErrorIs(t, l.DeleteAccount(ctx, a.ID), domain.ErrAccountInUse)
	_, err = l.DeleteTransaction(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, l.DeleteAccount(ctx, a.ID))
	assert.ErrorIs(t, l.DeleteAccount(ctx, a.ID), domain.ErrAccountNotFound)

	// 名稱釋放
	mustAccount(t, l, "A")
}

func TestSoftDelete(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, WithSoftDelete(true))
	a := mustAccount(t, l, "A")
	created, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, true, "5.00", today))
	require.NoError(t, err)

	_, err = l.DeleteTransaction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", balanceOf(t, l, a.ID, today))

	_, err = l.GetTransaction(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	require.NoError(t, l.DeleteAccount(ctx, a.ID))

	// 墓碑仍保留在記憶體中
	l.mu.RLock()
	tomb, ok := l.transactions[created.ID]
	l.mu.RUnlock()
	require.True(t, ok)
	assert.True(t, tomb.Deleted())
}

func TestConcurrentToggleKeepsBalanceConsistent(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a := mustAccount(t, l, "A")

	const n = 100
	ids := make([]int64, n)
	for i := range ids {
		created, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, false, "0.01", today))
		require.NoError(t, err)
		ids[i] = created.ID
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for _, id := range ids {
		go func(id int64) {
			defer wg.Done()
			_, err := l.UpdateTransaction(ctx, id, func(tx *domain.Transaction) error {
				tx.Settled = true
				return nil
			})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	assert.Equal(t, "1.00", balanceOf(t, l, a.ID, today))
}

func TestRecoverFromWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := wal.NewWAL(path)
	require.NoError(t, err)
	l, err := NewMutexLedger(w, WithSoftDelete(true))
	require.NoError(t, err)

	a := mustAccount(t, l, "Conta para saldo")
	b := mustAccount(t, l, "Temporaria")
	_, err = l.RenameAccount(ctx, a.ID, "Conta renomeada")
	require.NoError(t, err)
	require.NoError(t, l.DeleteAccount(ctx, b.ID))

	ref := uuid.New()
	first := newTx(a.ID, domain.TransactionTypeIncome, true, "534.00", today)
	first.RefID = ref
	_, err = l.CreateTransaction(ctx, first)
	require.NoError(t, err)
	second, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, false, "3500.00", today))
	require.NoError(t, err)
	third, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeExpense, true, "1000.00", today))
	require.NoError(t, err)
	_, err = l.UpdateTransaction(ctx, second.ID, func(tx *domain.Transaction) error {
		tx.Settled = true
		return nil
	})
	require.NoError(t, err)
	_, err = l.DeleteTransaction(ctx, third.ID)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer w2.Close()
	restored, err := NewMutexLedger(w2, WithSoftDelete(true))
	require.NoError(t, err)

	assert.Equal(t, "4034.00", balanceOf(t, restored, a.ID, today))
	accounts, err := restored.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Conta renomeada", accounts[0].Name)

	// ID 序號與 Idempotency-Key 都要恢復
	c := mustAccount(t, restored, "Nova")
	assert.Equal(t, int64(3), c.ID)
	retry := newTx(a.ID, domain.TransactionTypeIncome, true, "534.00", today)
	retry.RefID = ref
	again, err := restored.CreateTransaction(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.ID)
	next, err := restored.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, false, "1.00", today))
	require.NoError(t, err)
	assert.Equal(t, int64(4), next.ID)
}

// 以固定的 WAL 內容重播，欄位名稱變動時這裡會失敗
func TestReplayWALFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	lines := `{"op":"account.create","account":{"id":1,"name":"Conta para saldo","created_at":"2026-10-15T12:00:00Z","updated_at":"2026-10-15T12:00:00Z"},"at":"2026-10-15T12:00:00Z"}
{"op":"transaction.create","transaction":{"id":1,"account_id":1,"type":1,"settled":true,"description":"salario","amount":"1534.00","counterparty":"Empresa","transaction_date":"2026-10-15T00:00:00Z","payment_date":"2026-10-15T00:00:00Z","ref_id":"00000000-0000-0000-0000-000000000000","created_at":"2026-10-15T12:00:00Z","updated_at":"2026-10-15T12:00:00Z","deleted_at":"0001-01-01T00:00:00Z"},"at":"2026-10-15T12:00:00Z"}
{"op":"transaction.create","transaction":{"id":2,"account_id":1,"type":2,"settled":true,"description":"aluguel","amount":"1000.00","counterparty":"Locador","transaction_date":"2026-10-15T00:00:00Z","payment_date":"2026-10-16T00:00:00Z","ref_id":"00000000-0000-0000-0000-000000000000","created_at":"2026-10-15T12:00:00Z","updated_at":"2026-10-15T12:00:00Z","deleted_at":"0001-01-01T00:00:00Z"},"at":"2026-10-15T12:00:00Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), wal.FileMode))

	w, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer w.Close()
	l, err := NewMutexLedger(w)
	require.NoError(t, err)

	assert.Equal(t, "1534.00", balanceOf(t, l, 1, today))
	assert.Equal(t, "534.00", balanceOf(t, l, 1, today.AddDays(1)))

	tx, err := l.GetTransaction(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeExpense, tx.Type)
	assert.Equal(t, "Locador", tx.Counterparty)
	assert.Equal(t, today.AddDays(1), tx.PaymentDate)

	// 新寫入的紀錄使用相同欄位名稱
	_, err = l.CreateTransaction(context.Background(), newTx(1, domain.TransactionTypeIncome, false, "1.00", today))
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"account_id":1,"type":1,"settled":false`)
	assert.Contains(t, string(raw), `"payment_date":"2026-10-15T00:00:00Z"`)
}

func TestWriteSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	l := newLedger(t, WithSoftDelete(true))
	a := mustAccount(t, l, "Conta para saldo")
	b := mustAccount(t, l, "Temporaria")
	require.NoError(t, l.DeleteAccount(ctx, b.ID))
	_, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeIncome, true, "1534.00", today))
	require.NoError(t, err)
	gone, err := l.CreateTransaction(ctx, newTx(a.ID, domain.TransactionTypeExpense, true, "1000.00", today))
	require.NoError(t, err)
	_, err = l.DeleteTransaction(ctx, gone.ID)
	require.NoError(t, err)

	w, err := wal.NewWAL(filepath.Join(dir, "snapshot.log"))
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, l.WriteSnapshot(w))

	restored, err := NewMutexLedger(w, WithSoftDelete(true))
	require.NoError(t, err)
	assert.Equal(t, "1534.00", balanceOf(t, restored, a.ID, today))

	_, err = restored.GetTransaction(ctx, gone.ID)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	// 已刪除帳戶的 ID 不會被重新使用
	c := mustAccount(t, restored, "Nova")
	assert.Equal(t, int64(3), c.ID)
}
