package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Balance 單一帳戶在參考日的餘額
type Balance struct {
	AccountID   int64
	AccountName string
	Amount      decimal.Decimal
}

// Contribution 回傳交易對餘額的貢獻 (帶正負號)
//
// 只有已實現 (Settled) 且付款日不晚於參考日 asOf 的交易才計入：
// 收入為 +Amount，支出為 -Amount，其餘為 0。
func Contribution(t *Transaction, asOf Date) decimal.Decimal {
	if t == nil || !t.Settled || t.Deleted() || t.PaymentDate.After(asOf) {
		return decimal.Zero
	}
	switch t.Type {
	case TransactionTypeIncome:
		return t.Amount
	case TransactionTypeExpense:
		return t.Amount.Neg()
	}
	return decimal.Zero
}

// ComputeBalances 計算每個帳戶在 asOf 當天的餘額
//
// 參數:
//
//	accounts: 所有帳戶 (沒有交易的帳戶餘額為 0)
//	txs: 所有交易
//	asOf: 參考日
//
// 回傳:
//
//	[]Balance: 依帳戶 ID 排序
func ComputeBalances(accounts []*Account, txs []*Transaction, asOf Date) []Balance {
	sums := make(map[int64]decimal.Decimal, len(accounts))
	for _, t := range txs {
		c := Contribution(t, asOf)
		if c.IsZero() {
			continue
		}
		sums[t.AccountID] = sums[t.AccountID].Add(c)
	}

	out := make([]Balance, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, Balance{
			AccountID:   a.ID,
			AccountName: a.Name,
			Amount:      sums[a.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
