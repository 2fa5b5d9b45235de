package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// 檔案權限：rw-r--r--
const FileMode fs.FileMode = 0644

// WAL 是一個 append-only 的 JSON Lines 日誌檔
// 每筆紀錄寫入後立即 fsync，確保回傳成功時資料已落盤
type WAL struct {
	file *os.File
	mu   sync.Mutex
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_APPEND 每次寫入時自動跳到文件末尾，讀取前會先 Seek 回開頭
func NewWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileMode)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	return &WAL{file: file}, nil
}

// Write 寫入一筆紀錄並刷入硬碟
func (w *WAL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode wal record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("write wal record: %w", err)
	}
	return w.file.Sync()
}

// ReadAll 依寫入順序讀取所有紀錄
// callback 每次只拿到一筆原始 JSON，避免一次將所有資料載入記憶體
func (w *WAL) ReadAll(callback func(raw json.RawMessage) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	for n := 1; ; n++ {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode wal record %d: %w", n, err)
		}
		if err := callback(raw); err != nil {
			return fmt.Errorf("replay wal record %d: %w", n, err)
		}
	}
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
