package broker

import (
	"context"

	"github.com/lk2023060901/danmu-chat-go/internal/network/rpc"
	"github.com/lk2023060901/danmu-chat-go/internal/protocol"
)

//go:generate mockgen -source=callback.go -destination=mocks/mock_callback.go -package=mocks

// Callback 是服务端持有的客户端回调句柄。
//
// 调用可能阻塞，调用方需通过 ctx 约束时长；返回错误即视为投递失败。
type Callback interface {
	// Deliver 向客户端推送一行已格式化的文本。
	Deliver(ctx context.Context, text string) error
	// UpdateRoster 向客户端推送完整名单及其版本。
	UpdateRoster(ctx context.Context, names []string, generation uint64) error
}

// peerCallback 通过 rpc.Peer 回调客户端。
type peerCallback struct {
	peer *rpc.Peer
}

var _ Callback = (*peerCallback)(nil)

// NewPeerCallback 返回经由 p 回调客户端的 Callback。
func NewPeerCallback(p *rpc.Peer) Callback {
	return &peerCallback{peer: p}
}

func (c *peerCallback) Deliver(ctx context.Context, text string) error {
	return c.peer.Call(ctx, protocol.OpDeliver, &protocol.DeliverRequest{Text: text}, nil)
}

func (c *peerCallback) UpdateRoster(ctx context.Context, names []string, generation uint64) error {
	return c.peer.Call(ctx, protocol.OpUpdateRoster, &protocol.UpdateRosterRequest{
		Names:      names,
		Generation: generation,
	}, nil)
}

func (c *peerCallback) String() string {
	return c.peer.String()
}

// boundTo 判断回调是否经由 p。
func boundTo(cb Callback, p *rpc.Peer) bool {
	pc, ok := cb.(*peerCallback)
	return ok && pc.peer == p
}
