package client

import (
	"sync"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/conc"
)

// DefaultDispatchQueueSize 为待分发界面更新的默认队列长度。
const DefaultDispatchQueueSize = 256

// Dispatcher 将 Sink 更新串行交给单个消费协程执行。
// 它本身实现 Sink，生产方不直接接触目标 Sink。
type Dispatcher struct {
	target Sink

	mu     sync.RWMutex
	closed bool
	queue  chan func(Sink)
	done   *conc.Future[struct{}]
}

var _ Sink = (*Dispatcher)(nil)

// NewDispatcher 启动消费协程，按先进先出顺序把更新应用到 target。
func NewDispatcher(target Sink, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultDispatchQueueSize
	}
	d := &Dispatcher{
		target: target,
		queue:  make(chan func(Sink), size),
	}
	d.done = conc.Go(func() (struct{}, error) {
		for fn := range d.queue {
			fn(d.target)
		}
		return struct{}{}, nil
	})
	return d
}

// Post 将 fn 入队，队列满时阻塞；Dispatcher 关闭后返回 false。
func (d *Dispatcher) Post(fn func(Sink)) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.queue <- fn
	return true
}

// Close 停止接收更新，并等待已入队的更新执行完毕。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	_, _ = d.done.Await()
}

func (d *Dispatcher) AppendMessage(text string) {
	d.Post(func(s Sink) { s.AppendMessage(text) })
}

func (d *Dispatcher) UpdateRoster(names []string) {
	names = append([]string(nil), names...)
	d.Post(func(s Sink) { s.UpdateRoster(names) })
}

func (d *Dispatcher) SetConnected(connected bool) {
	d.Post(func(s Sink) { s.SetConnected(connected) })
}

func (d *Dispatcher) ShowError(title, message string) {
	d.Post(func(s Sink) { s.ShowError(title, message) })
}
