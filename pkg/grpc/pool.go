package grpc

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Pool 依目標地址快取 gRPC 連線，同一個地址只維護一條連線 (thread-safe)
type Pool struct {
	mu          sync.Mutex
	conns       map[string]*grpc.ClientConn
	interceptor grpc.UnaryClientInterceptor
	keepalive   time.Duration
}

// PoolOption 定義 Pool 的配置選項函數
type PoolOption func(*Pool)

// WithInterceptor 設定全域的 UnaryClientInterceptor (log、metadata 注入等)
func WithInterceptor(interceptor grpc.UnaryClientInterceptor) PoolOption {
	return func(p *Pool) {
		p.interceptor = interceptor
	}
}

// WithKeepalive 設定沒有活動時送出 ping 的間隔，0 代表不送
func WithKeepalive(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.keepalive = d
	}
}

// NewPool 建立連線池
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		conns:     make(map[string]*grpc.ClientConn),
		keepalive: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetConnection 取得 target 的連線，沒有或已關閉時建立新的
//
// 參數:
//
//	target: 目標地址 (e.g. "localhost:50051")
//	opts: 額外的 DialOption，會附加在預設選項之後
//
// 回傳值:
//
//	*grpc.ClientConn: 連線 (grpc.NewClient 為 lazy connect，第一次呼叫時才真正連線)
//	error: 建立失敗
func (p *Pool) GetConnection(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[target]; ok {
		if conn.GetState() != connectivity.Shutdown {
			return conn, nil
		}
		delete(p.conns, target)
	}

	// 內部服務之間走私有網路，預設不加密
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if p.keepalive > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                p.keepalive,
			Timeout:             time.Second,
			PermitWithoutStream: true,
		}))
	}
	if p.interceptor != nil {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(p.interceptor))
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for target %s: %w", target, err)
	}
	p.conns[target] = conn
	return conn, nil
}

// Len 目前快取的連線數
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Close 關閉所有連線，回傳合併後的錯誤
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for target, conn := range p.conns {
		err = multierr.Append(err, conn.Close())
		delete(p.conns, target)
	}
	return err
}
