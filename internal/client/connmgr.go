package client

import (
	"context"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/internal/network/rpc"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/retry"
)

// DialFunc 建立到 addr 处服务端的连接。
type DialFunc func(ctx context.Context, addr string) (*rpc.Peer, error)

// ConnectionManager 在有限次数内尝试获取服务端连接。
type ConnectionManager struct {
	addr     string
	dial     DialFunc
	attempts uint
	backoff  time.Duration
	clock    clockwork.Clock
}

// NewConnectionManager 创建 ConnectionManager，最多尝试 attempts 次，
// 两次尝试之间按 clock 等待 backoff。
func NewConnectionManager(addr string, dial DialFunc, attempts uint, backoff time.Duration, clock clockwork.Clock) *ConnectionManager {
	if attempts == 0 {
		attempts = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		addr:     addr,
		dial:     dial,
		attempts: attempts,
		backoff:  backoff,
		clock:    clock,
	}
}

// Addr 返回服务端地址。
func (m *ConnectionManager) Addr() string {
	return m.addr
}

// Connect 连接服务端。只有连接被拒绝时才重试，其他错误立即结束；
// ctx 取消时返回 ctx.Err()。
func (m *ConnectionManager) Connect(ctx context.Context) (*rpc.Peer, error) {
	logger := log.Ctx(ctx)

	var (
		peer    *rpc.Peer
		attempt uint
	)
	err := retry.Handle(ctx, func() (bool, error) {
		attempt++
		logger.Info("connection attempt",
			zap.String("addr", m.addr),
			zap.Uint("attempt", attempt),
			zap.Uint("maxAttempts", m.attempts))

		p, err := m.dial(ctx, m.addr)
		if err != nil {
			return IsConnRefused(err), err
		}
		peer = p
		return false, nil
	},
		retry.Attempts(m.attempts),
		retry.WithBackOff(backoff.NewConstantBackOff(m.backoff)),
		retry.WithClock(m.clock))

	if ctx.Err() != nil {
		if peer != nil {
			_ = peer.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, merr.WrapErrConnectFailure(m.addr, attempt, err)
	}
	logger.Info("Successfully connected to chat server", zap.String("addr", m.addr))
	return peer, nil
}

// IsConnRefused 判断 err 是否表示目标地址无人监听。
func IsConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, merr.ErrConnectFailure)
}
