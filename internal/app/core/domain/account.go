package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// MaxAccountNameLength 帳戶名稱上限 (字元數)，與 accounts.name 欄位 varchar(191) 一致
const MaxAccountNameLength = 191

// Account 記帳帳戶
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NameKey 決定帳戶名稱唯一性的比較鍵
type NameKey func(name string) string

// ExactName 名稱區分大小寫 (預設)
func ExactName(name string) string { return name }

// FoldedName 名稱不分大小寫，使用 Unicode case folding
func FoldedName(name string) string { return cases.Fold().String(name) }

// NameKeyFor 依設定回傳名稱比較鍵函式
func NameKeyFor(caseInsensitive bool) NameKey {
	if caseInsensitive {
		return FoldedName
	}
	return ExactName
}

// ValidateAccountName 檢查帳戶名稱，回傳去除前後空白後的名稱
func ValidateAccountName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewValidationError("nome", "Nome é um atributo obrigatório")
	}
	if utf8.RuneCountInString(name) > MaxAccountNameLength {
		return "", NewValidationError("nome", "Nome deve ter no máximo %d caracteres", MaxAccountNameLength)
	}
	return name, nil
}
