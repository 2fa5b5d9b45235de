package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("Conta não encontrada")

	// ErrDuplicateAccountName 帳戶名稱重複 (訊息需與既有 API 完全一致)
	ErrDuplicateAccountName = errors.New("Já existe uma conta com esse nome!")

	// ErrAccountInUse 帳戶仍有交易，不可刪除
	ErrAccountInUse = errors.New("Conta possui transações associadas")

	// ErrTransactionNotFound 找不到交易
	ErrTransactionNotFound = errors.New("Transação não encontrada")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")
)

// ValidationError 欄位驗證失敗
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 建立欄位驗證錯誤
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation 判斷 err 是否為 ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
