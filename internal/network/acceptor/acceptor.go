package acceptor

import (
	"context"
	"net"
	"time"

	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
)

// Config 描述 Acceptor 在会话层面的配置。
//
// ReadTimeout/WriteTimeout 控制单次读写的超时时间（为 0 表示不设置 deadline）。
type Config struct {
	SendQueueSize int
	RecvQueueSize int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SessionOptions 返回用于创建会话的发送参数。
func (c Config) SessionOptions() session.Options {
	return session.Options{
		SendQueueSize: c.SendQueueSize,
		WriteTimeout:  c.WriteTimeout,
	}
}

// Handler 由框架使用者实现，用于在服务器侧的各个阶段插入自定义逻辑。
//
// 除 OnAccept 外，所有回调均在单个会话的收/发协程中被调用，应避免耗时操作阻塞网络收发。
type Handler interface {
	session.Handler

	// OnAccept 在接受新连接后被调用，负责创建 Session。
	//
	// 返回 nil Session 且 err 为 nil 时连接会被直接关闭。
	OnAccept(ctx context.Context, conn net.Conn, c codec.Codec) (session.Session, error)

	// OnTimeout 在读超时时被调用，sess 为 nil 表示 Accept 超时。
	// 返回非 nil 时结束对应的会话或接入循环。
	OnTimeout(sess session.Session) error
}

// Acceptor 抽象了服务器侧的 TCP 接入层。
//
// 职责：
//   - 在 listener 上接受连接；
//   - 为每个连接创建 Session，并调用 Handler 的各阶段回调；
//   - 维护当前活跃会话，便于广播与运维。
type Acceptor interface {
	// Serve 启动接入循环，阻塞直至 ctx 取消、Close 被调用或出现致命错误。
	Serve(ctx context.Context, h Handler) error

	// Close 关闭监听以及所有活跃会话。
	Close() error

	// Addr 返回监听地址。
	Addr() net.Addr

	// Sessions 返回活跃会话索引。
	Sessions() session.SessionManager
}
