package rpc

import "context"

type peerKeyType struct{}

var peerKey = peerKeyType{}

// WithPeer 返回一个携带发起请求的对端的上下文。
func WithPeer(ctx context.Context, p *Peer) context.Context {
	return context.WithValue(ctx, peerKey, p)
}

// PeerFromContext 取出发起当前请求的对端。
func PeerFromContext(ctx context.Context) (*Peer, bool) {
	p, ok := ctx.Value(peerKey).(*Peer)
	return p, ok && p != nil
}
