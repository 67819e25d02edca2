package acceptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

// BaseAcceptor 是 Acceptor 接口的基础 TCP 实现。
//
// 内部负责监听端口、接受连接、创建 Session、驱动解码并回调 Handler；
// 每个连接的请求帧在独立的 goroutine 中串行处理。
type BaseAcceptor struct {
	ln       net.Listener
	codec    codec.Codec
	sessions session.SessionManager
	cfg      Config

	closeOnce sync.Once
	closed    atomic.Bool
}

// 确保 BaseAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建一个基础接入器。
//
// sm 可为 nil，此时使用内部的 BaseSessionManager。
func NewBaseAcceptor(ln net.Listener, c codec.Codec, sm session.SessionManager, cfg Config) (*BaseAcceptor, error) {
	if ln == nil {
		return nil, fmt.Errorf("acceptor: listener is nil")
	}
	if c == nil {
		return nil, fmt.Errorf("acceptor: codec is nil")
	}
	if sm == nil {
		sm = session.NewBaseSessionManager()
	}
	return &BaseAcceptor{
		ln:       ln,
		codec:    c,
		sessions: sm,
		cfg:      cfg,
	}, nil
}

// NewTCPAcceptor 在给定地址上监听 TCP，并创建一个基础接入器。
func NewTCPAcceptor(addr string, c codec.Codec, sm session.SessionManager, cfg Config) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, fmt.Errorf("acceptor: addr is empty")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	a, err := NewBaseAcceptor(ln, c, sm, cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return a, nil
}

// Addr 实现 Acceptor.Addr。
func (a *BaseAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Sessions 实现 Acceptor.Sessions。
func (a *BaseAcceptor) Sessions() session.SessionManager {
	return a.sessions
}

// Serve 实现 Acceptor.Serve。
//
// ctx 取消时关闭监听并返回 ctx.Err()；Close 导致的退出返回 nil。
// 返回前等待所有连接处理协程退出。
func (a *BaseAcceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("acceptor: handler is nil")
	}

	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			// 若上层已取消，则将错误视为正常退出。
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			// 若为超时错误，则交由 Handler.OnTimeout 决定后续行为。
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if terr := h.OnTimeout(nil); terr != nil {
					return terr
				}
				continue
			}

			h.OnError(nil, network.StageAccept, err)
			return err
		}

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			a.handleConnection(ctx, conn, h)
		}(conn)
	}
}

// Close 实现 Acceptor.Close。
func (a *BaseAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		err = a.ln.Close()
		a.sessions.Range(func(sess session.Session) bool {
			_ = sess.Close()
			return true
		})
	})
	return err
}

// handleConnection 处理单个连接的生命周期。
//
// 流程：
//  1. 调用 Handler.OnAccept 创建 Session；
//  2. 将 Session 注册到 SessionManager；
//  3. 调用 sess.OnConnected()；
//  4. 通过 session.Pump 读取并分发消息帧；
//  5. 连接断开后，调用 sess.OnDisconnected(err) 与 Handler.OnSessionClosed。
func (a *BaseAcceptor) handleConnection(ctx context.Context, conn net.Conn, h Handler) {
	sess, err := h.OnAccept(ctx, conn, a.codec)
	if err != nil {
		_ = conn.Close()
		h.OnError(nil, network.StageAccept, err)
		return
	}
	if sess == nil {
		_ = conn.Close()
		return
	}

	if err := a.sessions.Register(sess); err != nil {
		h.OnError(sess, network.StageAccept, err)
		_ = sess.Close()
		return
	}
	defer func() {
		_ = a.sessions.Unregister(sess.ID())
	}()
	// Close 之后注册的会话不会被 Close 遍历到。
	if a.closed.Load() {
		_ = sess.Close()
	}

	log.Debug("session accepted",
		log.FieldSessionID(sess.ID()),
		zap.Stringer("remote", sess.RemoteAddr()))

	sess.OnConnected()

	cause := session.Pump(sess, conn, a.codec, h, session.PumpOptions{
		ReadTimeout: a.cfg.ReadTimeout,
		QueueSize:   a.cfg.RecvQueueSize,
		OnTimeout:   h.OnTimeout,
	})

	sess.OnDisconnected(cause)
	h.OnSessionClosed(sess, cause)
	_ = sess.Close()

	log.Debug("session closed",
		log.FieldSessionID(sess.ID()),
		zap.Stringer("remote", sess.RemoteAddr()),
		zap.Error(cause))
}
