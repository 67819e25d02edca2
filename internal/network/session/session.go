package session

import (
	"context"
	"net"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
)

// Session 抽象了一条网络会话/连接。
//
// 约定：
//   - 每个 Session 对应一条底层 TCP 连接。
//   - Session ID 为 uuid 字符串，在进程内唯一。
//   - 框架层只关心会话本身，不关心“用户”等具体业务概念。
type Session interface {
	// ID 返回该会话的唯一标识。
	ID() string

	// Context 返回与该会话关联的上下文，会话关闭时 Done() 被关闭。
	Context() context.Context

	// RemoteAddr 返回远端地址。
	RemoteAddr() net.Addr

	// LocalAddr 返回本端地址。
	LocalAddr() net.Addr

	// Send 通过 Codec 向对端发送一帧。
	//
	// header 由调用方构造（op/seq/flags/code），msg 由 Codec 序列化，为 nil 时发送空 payload。
	// 实现只负责入队，实际写出在会话的发送协程中串行完成。
	Send(header *framer.MessageHeader, msg any) error

	// SetValue 在会话上附加一个属性。
	SetValue(key, value any)

	// Value 读取会话上的属性，不存在时返回 nil。
	Value(key any) any

	// Close 主动关闭该会话，多次调用是幂等的。
	Close() error

	// OnConnected 在会话建立成功后被调用一次。
	OnConnected()

	// OnDisconnected 在会话断开时被调用，err 为断开原因，正常关闭时为 nil。
	OnDisconnected(err error)
}

// Handler 接收会话上的入站帧以及关闭事件。
type Handler interface {
	// OnMessage 在成功解码出一帧后被调用。
	//
	// 响应帧在读协程中直接回调；请求帧在每个会话独立的处理协程中串行回调。
	OnMessage(sess Session, header *framer.MessageHeader, payload []byte)

	// OnSessionClosed 在会话生命周期结束时被调用。
	OnSessionClosed(sess Session, err error)

	// OnError 在会话处理的各个阶段发生错误时被调用。
	OnError(sess Session, stage network.Stage, err error)
}
