package connector

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/conc"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	SendQueueSize int
	RecvQueueSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const defaultDialTimeout = 5 * time.Second

// Connector 抽象了客户端的拨号器。
type Connector interface {
	// Dial 建立到 addr 的连接并返回会话。
	//
	// 拨号失败时原样返回底层错误，调用方可据此区分“连接被拒绝”等情况。
	// 会话的生命周期独立于 ctx，ctx 只约束拨号过程本身。
	Dial(ctx context.Context, addr string, h session.Handler) (session.Session, error)
}

// tcpConnector 是基于 TCP 的默认 Connector 实现。
type tcpConnector struct {
	cfg   Config
	codec codec.Codec
}

// NewTCPConnector 创建一个基于 TCP 的 Connector。
func NewTCPConnector(c codec.Codec, cfg Config) Connector {
	if c == nil {
		panic("connector: Codec is nil")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &tcpConnector{cfg: cfg, codec: c}
}

func (c *tcpConnector) Dial(ctx context.Context, addr string, h session.Handler) (session.Session, error) {
	if h == nil {
		return nil, fmt.Errorf("connector: handler is nil")
	}
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	sess := session.NewBaseSession(context.WithoutCancel(ctx), conn, c.codec, session.Options{
		SendQueueSize: c.cfg.SendQueueSize,
		WriteTimeout:  c.cfg.WriteTimeout,
	})
	sess.OnConnected()

	// 使用 conc.Go 启动读协程，避免直接使用原生 go 关键字。
	_ = conc.Go(func() (struct{}, error) {
		cause := session.Pump(sess, conn, c.codec, h, session.PumpOptions{
			ReadTimeout: c.cfg.ReadTimeout,
			QueueSize:   c.cfg.RecvQueueSize,
		})
		sess.OnDisconnected(cause)
		h.OnSessionClosed(sess, cause)
		log.Debug("client session closed",
			log.FieldSessionID(sess.ID()),
			zap.String("addr", addr),
			zap.Error(cause))
		return struct{}{}, cause
	})
	return sess, nil
}
