package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

type accountRequest struct {
	Name string `json:"nome"`
}

type accountResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"nome"`
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{ID: a.ID, Name: a.Name}
}

// transactionRequest POST 與 PUT 共用；nil 欄位代表請求沒有帶
// valor 可以是 JSON 數字或字串，decimal 兩者都能精確解析
type transactionRequest struct {
	Type            *string          `json:"tipo"`
	Settled         *bool            `json:"status"`
	AccountID       *int64           `json:"conta_id"`
	Description     *string          `json:"descricao"`
	Amount          *decimal.Decimal `json:"valor"`
	Counterparty    *string          `json:"envolvido"`
	TransactionDate *wireDate        `json:"data_transacao"`
	PaymentDate     *wireDate        `json:"data_pagamento"`
}

// wireDate 請求中的日期字串，轉成 domain.Date 時才依帳本時區解讀
type wireDate string

func (w *wireDate) toDate(field string, loc *time.Location) (*domain.Date, error) {
	if w == nil {
		return nil, nil
	}
	d, err := domain.ParseDateIn(string(*w), loc)
	if err != nil {
		return nil, domain.NewValidationError(field, "Data inválida: %q", string(*w))
	}
	return &d, nil
}

// formatDate 回應中的日期：帳本時區當天零點，以 UTC 表示
// UTC-3 的 15 日會輸出 2026-10-15T03:00:00Z，客戶端換回當地時間仍是 15 日
func formatDate(d domain.Date, loc *time.Location) string {
	return d.In(loc).UTC().Format(time.RFC3339)
}

// toTransaction 轉成新增用的交易，缺少的欄位交給 Validate 回報
func (r *transactionRequest) toTransaction(loc *time.Location) (*domain.Transaction, error) {
	patch, err := r.toPatch(loc)
	if err != nil {
		return nil, err
	}
	t := &domain.Transaction{}
	patch.Apply(t)
	return t, nil
}

// toPatch 轉成部分更新
func (r *transactionRequest) toPatch(loc *time.Location) (domain.TransactionPatch, error) {
	patch := domain.TransactionPatch{
		AccountID:    r.AccountID,
		Settled:      r.Settled,
		Description:  r.Description,
		Amount:       r.Amount,
		Counterparty: r.Counterparty,
	}
	var err error
	if patch.TransactionDate, err = r.TransactionDate.toDate("data_transacao", loc); err != nil {
		return domain.TransactionPatch{}, err
	}
	if patch.PaymentDate, err = r.PaymentDate.toDate("data_pagamento", loc); err != nil {
		return domain.TransactionPatch{}, err
	}
	if r.Type != nil {
		typ, err := domain.ParseTransactionType(*r.Type)
		if err != nil {
			return domain.TransactionPatch{}, err
		}
		patch.Type = &typ
	}
	return patch, nil
}

type transactionResponse struct {
	ID              int64       `json:"id"`
	Type            string      `json:"tipo"`
	Settled         bool        `json:"status"`
	AccountID       int64       `json:"conta_id"`
	Description     string      `json:"descricao"`
	Amount          string      `json:"valor"`
	Counterparty    string      `json:"envolvido"`
	TransactionDate string `json:"data_transacao"`
	PaymentDate     string `json:"data_pagamento"`
}

func toTransactionResponse(t *domain.Transaction, loc *time.Location) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Type:            t.Type.Code(),
		Settled:         t.Settled,
		AccountID:       t.AccountID,
		Description:     t.Description,
		Amount:          domain.FormatAmount(t.Amount),
		Counterparty:    t.Counterparty,
		TransactionDate: formatDate(t.TransactionDate, loc),
		PaymentDate:     formatDate(t.PaymentDate, loc),
	}
}

type balanceResponse struct {
	AccountID   int64  `json:"conta_id"`
	AccountName string `json:"conta"`
	Balance     string `json:"saldo"`
}

type healthResponse struct {
	Status string `json:"status"`
}
