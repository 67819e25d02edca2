package rpc

import (
	"context"
	"net"

	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

// ServerHooks 在 Peer 生命周期的关键节点被调用，字段均可为 nil。
type ServerHooks struct {
	// OnPeerOpened 在新连接的 Peer 创建完成后被调用。
	OnPeerOpened func(p *Peer)
	// OnPeerClosed 在连接断开、Peer 关闭后被调用。
	OnPeerClosed func(p *Peer, err error)
}

// ServerHandler 将 acceptor 的回调适配为 Peer：每个连接对应一个 Peer。
type ServerHandler struct {
	cfg   acceptor.Config
	opts  []Option
	hooks ServerHooks
}

var _ acceptor.Handler = (*ServerHandler)(nil)

// NewServerHandler 创建一个服务器侧 Handler，opts 会应用到每个连接的 Peer 上。
func NewServerHandler(cfg acceptor.Config, hooks ServerHooks, opts ...Option) *ServerHandler {
	return &ServerHandler{cfg: cfg, opts: opts, hooks: hooks}
}

// peerSession 是携带 Peer 的会话。
type peerSession struct {
	*session.BaseSession
	peer *Peer
}

// PeerOf 返回会话上绑定的 Peer。
func PeerOf(sess session.Session) (*Peer, bool) {
	ps, ok := sess.(*peerSession)
	if !ok || ps.peer == nil {
		return nil, false
	}
	return ps.peer, true
}

// OnAccept 实现 acceptor.Handler。
func (h *ServerHandler) OnAccept(ctx context.Context, conn net.Conn, c codec.Codec) (session.Session, error) {
	ps := &peerSession{BaseSession: session.NewBaseSession(ctx, conn, c, h.cfg.SessionOptions())}
	ps.peer = NewPeer(ps, c, h.opts...)
	if h.hooks.OnPeerOpened != nil {
		h.hooks.OnPeerOpened(ps.peer)
	}
	return ps, nil
}

// OnMessage 实现 session.Handler。
func (h *ServerHandler) OnMessage(sess session.Session, header *framer.MessageHeader, payload []byte) {
	if p, ok := PeerOf(sess); ok {
		p.HandleFrame(header, payload)
	}
}

// OnSessionClosed 实现 session.Handler。
func (h *ServerHandler) OnSessionClosed(sess session.Session, err error) {
	p, ok := PeerOf(sess)
	if !ok {
		return
	}
	_ = p.Close()
	if h.hooks.OnPeerClosed != nil {
		h.hooks.OnPeerClosed(p, err)
	}
}

// OnTimeout 实现 acceptor.Handler，读超时即断开连接。
func (h *ServerHandler) OnTimeout(sess session.Session) error {
	if sess == nil {
		return nil
	}
	return network.ErrRecvFailed
}

// OnError 实现 session.Handler。
func (h *ServerHandler) OnError(sess session.Session, stage network.Stage, err error) {
	fields := []zap.Field{zap.String("stage", string(stage)), zap.Error(err)}
	if sess != nil {
		fields = append(fields, log.FieldSessionID(sess.ID()), zap.Stringer("remote", sess.RemoteAddr()))
	}
	log.Warn("connection error", fields...)
}
