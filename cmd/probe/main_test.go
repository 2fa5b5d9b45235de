package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/grpc"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func startHealth(t *testing.T, ping pingFunc) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h := grpc_adapter.NewHealthServer(ping, grpc_adapter.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	h.Refresh(context.Background())
	s := grpc.NewServer()
	h.Register(s)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return lis.Addr().String()
}

func TestRun(t *testing.T) {
	color.NoColor = true
	healthy := startHealth(t, func(context.Context) error { return nil })
	broken := startHealth(t, func(context.Context) error { return errors.New("db down") })
	ctx := context.Background()

	assert.NoError(t, run(ctx, []string{healthy}, grpc_adapter.ServiceName, 2*time.Second))

	err := run(ctx, []string{healthy, broken}, grpc_adapter.ServiceName, 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 targets unhealthy", err.Error())

	err = run(ctx, []string{healthy}, "unknown.Service", 2*time.Second)
	assert.Error(t, err, "unknown service answers NOT_FOUND")
}
