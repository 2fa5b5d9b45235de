package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountScale 金額精度：小數點後 2 位
const AmountScale = 2

// MaxTextLength descricao、envolvido 的上限 (字元數)，與 varchar(255) 欄位一致
const MaxTextLength = 255

// TransactionType 交易類型，決定金額的正負號
type TransactionType uint8

const (
	// 收入 (+)
	TransactionTypeIncome TransactionType = 1
	// 支出 (-)
	TransactionTypeExpense TransactionType = 2
)

// 對外 API 使用的類型代碼
const (
	TypeCodeIncome  = "REC"
	TypeCodeExpense = "DESP"
)

// Code 回傳 API 類型代碼
func (t TransactionType) Code() string {
	switch t {
	case TransactionTypeIncome:
		return TypeCodeIncome
	case TransactionTypeExpense:
		return TypeCodeExpense
	}
	return ""
}

// Valid 是否為已知類型
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// ParseTransactionType 解析 API 類型代碼 (REC / DESP)
func ParseTransactionType(code string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case TypeCodeIncome:
		return TransactionTypeIncome, nil
	case TypeCodeExpense:
		return TransactionTypeExpense, nil
	}
	return 0, NewValidationError("tipo", "Tipo inválido: %q", code)
}

// Transaction 交易
// json 標籤即 WAL 的磁碟格式，改名會讓既有 WAL 無法重播
type Transaction struct {
	ID              int64           `json:"id"`
	AccountID       int64           `json:"account_id"`
	Type            TransactionType `json:"type"`
	Settled         bool            `json:"settled"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Counterparty    string          `json:"counterparty"`
	TransactionDate Date            `json:"transaction_date"`
	PaymentDate     Date            `json:"payment_date"`
	// RefID 外部追蹤號 (Idempotency-Key)，零值代表未提供
	RefID     uuid.UUID `json:"ref_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// DeletedAt 軟刪除時間，零值代表未刪除
	DeletedAt time.Time `json:"deleted_at"`
}

// Deleted 是否已被軟刪除
func (t *Transaction) Deleted() bool { return !t.DeletedAt.IsZero() }

// Clone 回傳副本，避免呼叫端改寫內部狀態
func (t *Transaction) Clone() *Transaction {
	cp := *t
	return &cp
}

// Validate 檢查交易欄位是否完整合法
func (t *Transaction) Validate() error {
	if t.AccountID <= 0 {
		return NewValidationError("conta_id", "Conta é um atributo obrigatório")
	}
	if !t.Type.Valid() {
		return NewValidationError("tipo", "Tipo é um atributo obrigatório")
	}
	if strings.TrimSpace(t.Description) == "" {
		return NewValidationError("descricao", "Descrição é um atributo obrigatório")
	}
	if strings.TrimSpace(t.Counterparty) == "" {
		return NewValidationError("envolvido", "Interessado é um atributo obrigatório")
	}
	if utf8.RuneCountInString(t.Description) > MaxTextLength {
		return NewValidationError("descricao", "Descrição deve ter no máximo %d caracteres", MaxTextLength)
	}
	if utf8.RuneCountInString(t.Counterparty) > MaxTextLength {
		return NewValidationError("envolvido", "Interessado deve ter no máximo %d caracteres", MaxTextLength)
	}
	if t.TransactionDate.IsZero() {
		return NewValidationError("data_transacao", "Data da Movimentação é obrigatório")
	}
	if t.PaymentDate.IsZero() {
		return NewValidationError("data_pagamento", "Data do pagamento é obrigatório")
	}
	return ValidateAmount(t.Amount)
}

// ValidateAmount 金額必須為正數且不超過兩位小數
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("valor", "Valor deve ser maior que zero")
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return NewValidationError("valor", "Valor deve ter no máximo %d casas decimais", AmountScale)
	}
	return nil
}

// FormatAmount 固定兩位小數字串，例如 "32.99"
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(AmountScale)
}

// TransactionPatch 部分更新，nil 代表維持原值
type TransactionPatch struct {
	AccountID       *int64
	Type            *TransactionType
	Settled         *bool
	Description     *string
	Amount          *decimal.Decimal
	Counterparty    *string
	TransactionDate *Date
	PaymentDate     *Date
}

// Apply 將 patch 套用到 t
func (p TransactionPatch) Apply(t *Transaction) {
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Settled != nil {
		t.Settled = *p.Settled
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Counterparty != nil {
		t.Counterparty = *p.Counterparty
	}
	if p.TransactionDate != nil {
		t.TransactionDate = *p.TransactionDate
	}
	if p.PaymentDate != nil {
		t.PaymentDate = *p.PaymentDate
	}
}

// AffectsBalance patch 是否改動了影響餘額的欄位
func (p TransactionPatch) AffectsBalance() bool {
	return p.AccountID != nil || p.Type != nil || p.Settled != nil || p.Amount != nil || p.PaymentDate != nil
}

// TransactionFilter 查詢條件，零值欄位不過濾
type TransactionFilter struct {
	Description string
	AccountID   int64
}

// Match t 是否符合條件
func (f TransactionFilter) Match(t *Transaction) bool {
	if f.Description != "" && t.Description != f.Description {
		return false
	}
	if f.AccountID != 0 && t.AccountID != f.AccountID {
		return false
	}
	return true
}

// LockIDs 回傳更新交易時需要鎖定的帳戶 ID (由小到大以避免死鎖)
func LockIDs(before, after int64) []int64 {
	ids := make([]int64, 0, 2)
	switch {
	case before == after || after == 0:
		ids = append(ids, before)
	case before == 0:
		ids = append(ids, after)
	case before < after:
		ids = append(ids, before, after)
	default:
		ids = append(ids, after, before)
	}
	return ids
}

// String 方便 log 輸出
func (t *Transaction) String() string {
	return fmt.Sprintf("tx#%d[%s %s acct=%d settled=%t pay=%s]",
		t.ID, t.Type.Code(), FormatAmount(t.Amount), t.AccountID, t.Settled, t.PaymentDate)
}
