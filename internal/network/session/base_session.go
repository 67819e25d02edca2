package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

// Options 描述单个会话的发送参数。
type Options struct {
	// SendQueueSize 为发送队列容量，<= 0 时使用 DefaultSendQueueSize。
	SendQueueSize int
	// WriteTimeout 为单帧写出的超时时间，0 表示不设置 deadline。
	WriteTimeout time.Duration
}

// DefaultSendQueueSize 为每个会话默认的发送队列容量。
const DefaultSendQueueSize = 1024

// BaseSession 提供了 Session 接口的基础实现。
//
// 封装 ID、Context、地址信息、属性、发送与关闭；OnConnected/OnDisconnected 默认为空，
// 方便业务在自定义 Session 中嵌入并覆写。
type BaseSession struct {
	id string

	ctx    context.Context
	cancel context.CancelFunc

	conn  net.Conn
	codec codec.Codec

	remoteAddr net.Addr
	localAddr  net.Addr

	// sendQueue 为待发送消息的对象级队列。
	//   - Send 仅负责将 (header, msg) 投递到该队列；
	//   - sendLoop 从队列中取出消息，编码后直接写入连接。
	// 队列从不关闭，关闭会话只取消 ctx，避免并发 Send 向已关闭通道写入。
	sendQueue    chan outboundMessage
	writeTimeout time.Duration

	attrs sync.Map

	closed    atomic.Bool
	closeOnce sync.Once
}

// 确保 BaseSession 实现了 Session 接口。
var _ Session = (*BaseSession)(nil)

// outboundMessage 表示一条待发送的协议消息。
type outboundMessage struct {
	header *framer.MessageHeader
	msg    any
}

// NewBaseSession 创建一个基于 net.Conn 的基础 Session 实例，并启动发送协程。
//
// parent 为会话所属的上层上下文（例如 Acceptor 的 Serve ctx），其取消会关闭会话。
func NewBaseSession(parent context.Context, conn net.Conn, c codec.Codec, opts Options) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}
	ctx, cancel := context.WithCancel(parent)

	s := &BaseSession{
		id:           uuid.NewString(),
		ctx:          ctx,
		cancel:       cancel,
		conn:         conn,
		codec:        c,
		remoteAddr:   conn.RemoteAddr(),
		localAddr:    conn.LocalAddr(),
		sendQueue:    make(chan outboundMessage, opts.SendQueueSize),
		writeTimeout: opts.WriteTimeout,
	}
	go s.sendLoop()
	return s
}

// ID 实现 Session.ID。
func (s *BaseSession) ID() string {
	return s.id
}

// Context 实现 Session.Context。
func (s *BaseSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *BaseSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// LocalAddr 实现 Session.LocalAddr。
func (s *BaseSession) LocalAddr() net.Addr {
	return s.localAddr
}

// Send 实现 Session.Send。
//
// 内部仅将消息投递到会话级发送队列，由发送协程按顺序编码并写入连接，
// 避免多 goroutine 并发写 conn 导致的报文交叉。
func (s *BaseSession) Send(header *framer.MessageHeader, msg any) error {
	if header == nil {
		header = &framer.MessageHeader{}
	}
	if header.Timestamp == 0 {
		header.Timestamp = time.Now().UnixMilli()
	}
	if s.closed.Load() {
		return network.ErrSessionClosed
	}
	select {
	case <-s.ctx.Done():
		return network.ErrSessionClosed
	case s.sendQueue <- outboundMessage{header: header, msg: msg}:
		return nil
	}
}

// SetValue 实现 Session.SetValue。
func (s *BaseSession) SetValue(key, value any) {
	s.attrs.Store(key, value)
}

// Value 实现 Session.Value。
func (s *BaseSession) Value(key any) any {
	v, _ := s.attrs.Load(key)
	return v
}

// Close 实现 Session.Close。
func (s *BaseSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		// 先取消上下文，再关闭连接。
		s.cancel()
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

// Closed 判断会话是否已经关闭。
func (s *BaseSession) Closed() bool {
	return s.closed.Load()
}

// OnConnected 默认实现为空，方便在自定义 Session 中覆写。
func (s *BaseSession) OnConnected() {}

// OnDisconnected 默认实现为空，方便在自定义 Session 中覆写。
func (s *BaseSession) OnDisconnected(error) {}

// sendLoop 为每个会话启动的专职发送协程。
//
// 上下文取消（包括上层 Serve 退出）时关闭会话，写出失败同样关闭会话以触发读协程退出。
func (s *BaseSession) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			_ = s.Close()
			return
		case out := <-s.sendQueue:
			if s.writeTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := s.codec.Encode(s.conn, out.header, out.msg); err != nil {
				log.Warn("session send failed, closing",
					log.FieldSessionID(s.id),
					zap.Uint32("op", out.header.Op),
					zap.Stringer("remote", s.remoteAddr),
					zap.Error(err))
				_ = s.Close()
				return
			}
		}
	}
}
