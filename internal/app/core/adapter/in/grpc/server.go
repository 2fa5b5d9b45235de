package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName 健康檢查所用的服務名稱
const ServiceName = "cashledger.Ledger"

// Pinger 任何可以回報儲存層是否可用的元件 (CoreUseCase 即符合)
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer 以 Ledger.Ping 驅動標準 gRPC health service
type HealthServer struct {
	pinger   Pinger
	health   *health.Server
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// Option 定義 HealthServer 的配置選項函數
type Option func(*HealthServer)

// WithInterval 設定檢查間隔
func WithInterval(d time.Duration) Option {
	return func(h *HealthServer) { h.interval = d }
}

// WithLogger 設定 logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *HealthServer) { h.logger = logger }
}

// NewHealthServer 建立 HealthServer，初始狀態為 NOT_SERVING，直到第一次檢查成功
func NewHealthServer(pinger Pinger, opts ...Option) *HealthServer {
	h := &HealthServer{
		pinger:   pinger,
		health:   health.NewServer(),
		interval: 5 * time.Second,
		timeout:  2 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register 註冊 health service 與 reflection (方便 grpcurl 之類的工具)
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
}

// Run 週期性檢查儲存層直到 ctx 結束
func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return nil
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Refresh 立即檢查一次並更新狀態
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "ledger ping failed", slog.Any("error", err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.set(status)
	return status
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	// "" 代表整個 server 的狀態
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
