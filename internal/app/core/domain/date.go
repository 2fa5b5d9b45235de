package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// 日期格式
const (
	// DateFormatBR API 輸入格式 DD/MM/YYYY
	DateFormatBR = "02/01/2006"
	// DateFormatISO 資料庫與內部格式
	DateFormatISO = "2006-01-02"
)

// Date 只精確到「日」的日曆日期，不帶時區
// 避免付款日與參考日比較時因時區產生差一天的問題
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate 建立正規化後的日期 (例如 2/30 會進位成 3/2)
func NewDate(year int, month time.Month, day int) Date {
	y, m, d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Date()
	return Date{y: y, m: m, d: d}
}

// DateOf 取得 t 在 loc 時區下的日期
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	return NewDate(t.Date())
}

// ParseDate 解析外部傳入的日期字串
// 支援 DD/MM/YYYY、YYYY-MM-DD 以及 RFC3339 (取字串本身時區的日期)
func ParseDate(s string) (Date, error) {
	return ParseDateIn(s, nil)
}

// ParseDateIn 同 ParseDate，但 RFC3339 時間點會先換算到 loc 再取日期
// 例如 loc 為 UTC-3 時 "2026-10-16T03:00:00Z" 是 16 日
func ParseDateIn(s string, loc *time.Location) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateFormatBR, DateFormatISO} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Date()), nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t, loc), nil
	}
	return Date{}, fmt.Errorf("invalid date %q, want format DD/MM/YYYY", s)
}

func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// IsZero 是否為零值 (未設定)
func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }

// Year 年
func (d Date) Year() int { return d.y }

// Month 月
func (d Date) Month() time.Month { return d.m }

// Day 日
func (d Date) Day() int { return d.d }

// Before d 是否早於 x
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

// After d 是否晚於 x
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// Equal 是否為同一天
func (d Date) Equal(x Date) bool { return d == x }

// AddDays 加減天數
func (d Date) AddDays(n int) Date { return NewDate(d.y, d.m, d.d+n) }

// String ISO 格式
func (d Date) String() string { return d.time().Format(DateFormatISO) }

// Time 當天 UTC 零點
func (d Date) Time() time.Time { return d.time() }

// In 當天在 loc 時區的零點
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		return d.time()
	}
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, loc)
}

// MarshalJSON 輸出為當天 UTC 零點的 RFC3339 字串 (WAL 等內部格式使用，不含時區)
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.time().Format(time.RFC3339))
}

// UnmarshalJSON 接受 ParseDate 支援的所有格式
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
// 以字串寫入，避免 driver 依連線時區轉換 time.Time 而改變日期
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v.Date())
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func (d *Date) scanString(s string) error {
	// DATETIME 欄位可能帶時間部分
	if len(s) > len(DateFormatISO) {
		s = s[:len(DateFormatISO)]
	}
	t, err := time.Parse(DateFormatISO, s)
	if err != nil {
		return err
	}
	*d = NewDate(t.Date())
	return nil
}
