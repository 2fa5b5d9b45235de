package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	memory_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

func compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "rewrite the memory ledger WAL as a snapshot (run while the service is stopped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return compactWAL(cfg, logger)
		},
	}
}

// compactWAL 重播 WAL 後寫出快照到暫存檔，再以 atomic rename 取代原檔
func compactWAL(cfg *Config, logger *slog.Logger) (err error) {
	if cfg.Ledger.Backend != BackendMemory || cfg.Ledger.WALPath == "" {
		return fmt.Errorf("compact needs ledger.backend memory and a ledger.wal_path")
	}
	target := cfg.Ledger.WALPath

	src, err := wal.NewWAL(target)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, src.Close()) }()

	ledger, err := memory_adapter.NewMutexLedger(src,
		memory_adapter.WithNameKey(domain.NameKeyFor(cfg.Ledger.CaseInsensitiveNames)),
		memory_adapter.WithSoftDelete(cfg.Ledger.SoftDelete),
	)
	if err != nil {
		return fmt.Errorf("replay %s: %w", target, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+"-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		return err
	}
	dst, err := wal.NewWAL(tmpName)
	if err != nil {
		return multierr.Append(err, os.Remove(tmpName))
	}
	if err := multierr.Combine(ledger.WriteSnapshot(dst), dst.Close()); err != nil {
		return multierr.Append(err, os.Remove(tmpName))
	}
	if err := atomic.ReplaceFile(tmpName, target); err != nil {
		return multierr.Append(err, os.Remove(tmpName))
	}

	attrs := []any{slog.String("path", target)}
	if fi, statErr := os.Stat(target); statErr == nil {
		attrs = append(attrs, slog.Int64("bytes", fi.Size()))
	}
	logger.Info("wal compacted", attrs...)
	return nil
}
