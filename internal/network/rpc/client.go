package rpc

import (
	"context"

	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/connector"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

// clientHandler 把连接上的帧转交给 Dial 返回的 Peer。
type clientHandler struct {
	ready    chan struct{}
	peer     *Peer
	onClosed func(p *Peer, err error)
}

func (h *clientHandler) OnMessage(_ session.Session, header *framer.MessageHeader, payload []byte) {
	<-h.ready
	h.peer.HandleFrame(header, payload)
}

func (h *clientHandler) OnSessionClosed(_ session.Session, err error) {
	<-h.ready
	_ = h.peer.Close()
	if h.onClosed != nil {
		h.onClosed(h.peer, err)
	}
}

func (h *clientHandler) OnError(sess session.Session, stage network.Stage, err error) {
	log.Warn("connection error",
		log.FieldSessionID(sess.ID()),
		zap.String("stage", string(stage)),
		zap.Error(err))
}

// Dial 通过 conn 建立连接并返回 Peer。
//
// onClosed 在连接断开后被调用一次，可为 nil。拨号错误原样返回。
func Dial(ctx context.Context, conn connector.Connector, c codec.Codec, addr string, onClosed func(p *Peer, err error), opts ...Option) (*Peer, error) {
	h := &clientHandler{ready: make(chan struct{}), onClosed: onClosed}
	sess, err := conn.Dial(ctx, addr, h)
	if err != nil {
		return nil, err
	}
	h.peer = NewPeer(sess, c, opts...)
	close(h.ready)
	return h.peer, nil
}
