package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpc_adapter "github.com/JoeShih716/go-cash-ledger/internal/app/core/adapter/in/grpc"
	grpcpool "github.com/JoeShih716/go-cash-ledger/pkg/grpc"
)

// probe 對一或多個 cash-ledger 實例呼叫 gRPC health check
// 全部 SERVING 時 exit 0，可用於 container healthcheck
func main() {
	var (
		timeout time.Duration
		service string
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "probe [target...]",
		Short: "check the gRPC health of cash-ledger instances",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			color.NoColor = color.NoColor || noColor
			if len(args) == 0 {
				args = []string{"localhost:50051"}
			}
			return run(cmd.Context(), args, service, timeout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "per-target timeout")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.Flags().StringVarP(&service, "service", "s", grpc_adapter.ServiceName, "service name to check (empty for the whole server)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, targets []string, service string, timeout time.Duration) error {
	pool := grpcpool.NewPool(grpcpool.WithInterceptor(logCalls))
	defer pool.Close()

	green, red := color.New(color.FgGreen), color.New(color.FgRed)

	failed := 0
	for _, target := range targets {
		conn, err := pool.GetConnection(target)
		if err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		cancel()

		switch {
		case err != nil:
			failed++
			fmt.Printf("%s\t%s\t%v\n", target, red.Sprint("ERROR"), err)
		case resp.GetStatus() != healthpb.HealthCheckResponse_SERVING:
			failed++
			fmt.Printf("%s\t%s\n", target, red.Sprint(resp.GetStatus()))
		default:
			fmt.Printf("%s\t%s\n", target, green.Sprint(resp.GetStatus()))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d targets unhealthy", failed, len(targets))
	}
	return nil
}

func logCalls(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	start := time.Now()
	err := invoker(ctx, method, req, reply, cc, opts...)
	slog.Debug("grpc call",
		slog.String("target", cc.Target()),
		slog.String("method", method),
		slog.Duration("duration", time.Since(start)),
		slog.Any("error", err))
	return err
}
