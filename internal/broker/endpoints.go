package broker

import (
	"sync"

	"github.com/lk2023060901/danmu-chat-go/internal/network/rpc"
)

// Directory 维护回调端点名到客户端连接的绑定。
//
// 同名重复绑定会覆盖旧值；连接关闭后其上的所有绑定都会被解除。
type Directory struct {
	mu    sync.RWMutex
	peers map[string]*rpc.Peer
}

// NewDirectory 创建一个空目录。
func NewDirectory() *Directory {
	return &Directory{peers: make(map[string]*rpc.Peer)}
}

// Bind 将 name 绑定到 p，返回被替换的旧连接。
func (d *Directory) Bind(name string, p *rpc.Peer) (previous *rpc.Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	previous = d.peers[name]
	d.peers[name] = p
	return previous
}

// Lookup 查找 name 对应的连接。
func (d *Directory) Lookup(name string) (*rpc.Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[name]
	return p, ok
}

// UnbindPeer 解除 p 上的所有绑定，返回被解除的端点名。
func (d *Directory) UnbindPeer(p *rpc.Peer) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for name, bound := range d.peers {
		if bound == p {
			delete(d.peers, name)
			names = append(names, name)
		}
	}
	return names
}

// Len 返回当前绑定数量。
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}
