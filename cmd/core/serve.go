package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/grpc"
	http_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-cash-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-cash-ledger/pkg/mysql"
	"github.com/JoeShih716/go-cash-ledger/pkg/wal"
)

func serveCmd() *cobra.Command {
	var backend Backend
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API and the gRPC health service",
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
			if backend != "" {
				cfg.Ledger.Backend = backend
				if err := cfg.validate(); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().Var(&backend, "backend", "override ledger.backend (memory|mysql)")
	return cmd
}

// serve 組裝並啟動服務，ctx 結束時優雅關閉
func serve(ctx context.Context, cfg *Config, logOut io.Writer) (err error) {
	// 1. Logger
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loc, err := cfg.location()
	if err != nil {
		return err
	}

	// 2. Ledger (Driven Adapter)
	ledger, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeLedger())
	}()

	// 3. UseCase
	core := usecase.NewCoreUseCase(ledger,
		usecase.WithLogger(logger),
		usecase.WithLocation(loc),
	)

	// 4. HTTP Adapter (Driving Adapter)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      http_adapter.NewServer(core, logger).Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// 5. gRPC health service
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
	}
	grpcServer := grpc.NewServer()
	health := grpc_adapter.NewHealthServer(core,
		grpc_adapter.WithInterval(cfg.GRPC.HealthInterval),
		grpc_adapter.WithLogger(logger),
	)
	health.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("starting grpc server", slog.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return health.Run(gctx)
	})
	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	err = g.Wait()
	logger.Info("server exited")
	return err
}

// openLedger 依設定建立帳本，回傳的 close 函式負責釋放 WAL 檔案或 DB 連線
func openLedger(ctx context.Context, cfg *Config, logger *slog.Logger) (usecase.Ledger, func() error, error) {
	nameKey := domain.NameKeyFor(cfg.Ledger.CaseInsensitiveNames)

	switch cfg.Ledger.Backend {
	case BackendMySQL:
		client, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			return nil, nil, err
		}
		ledger := mysql_adapter.NewMySQLLedger(client,
			mysql_adapter.WithNameKey(nameKey),
			mysql_adapter.WithSoftDelete(cfg.Ledger.SoftDelete),
		)
		if err := ledger.Migrate(ctx); err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("migrate: %w", err), client.Close())
		}
		logger.Info("connected to mysql",
			slog.String("host", cfg.MySQL.Host),
			slog.String("db", cfg.MySQL.DBName))
		return ledger, client.Close, nil

	default:
		var walFile *wal.WAL
		closeWAL := func() error { return nil }
		if cfg.Ledger.WALPath != "" {
			var err error
			walFile, err = wal.NewWAL(cfg.Ledger.WALPath)
			if err != nil {
				return nil, nil, fmt.Errorf("init wal: %w", err)
			}
			closeWAL = walFile.Close
		}
		ledger, err := memory_adapter.NewMutexLedger(walFile,
			memory_adapter.WithNameKey(nameKey),
			memory_adapter.WithSoftDelete(cfg.Ledger.SoftDelete),
		)
		if err != nil {
			return nil, nil, multierr.Append(fmt.Errorf("recover ledger from wal: %w", err), closeWAL())
		}
		logger.Info("memory ledger ready", slog.String("wal", cfg.Ledger.WALPath))
		return ledger, closeWAL, nil
	}
}
