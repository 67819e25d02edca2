package broker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/conc"
)

// Sequencer 按键串行执行任务：同一键的任务按提交顺序依次执行，不同键之间互不阻塞。
//
// 服务端用它把扇出移出请求处理路径，发起方的 RPC 先得到响应，
// 同一连接发起的广播仍保持先后顺序。
type Sequencer struct {
	mu     sync.Mutex
	queues map[string][]func()
	closed bool
	wg     sync.WaitGroup
}

// NewSequencer 创建 Sequencer。
func NewSequencer() *Sequencer {
	return &Sequencer{queues: make(map[string][]func())}
}

// Submit 将 fn 追加到 key 对应的队列，Close 之后提交返回 false。
func (s *Sequencer) Submit(key string, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	queue, running := s.queues[key]
	s.queues[key] = append(queue, fn)
	if !running {
		s.wg.Add(1)
		conc.Go(func() (struct{}, error) {
			defer s.wg.Done()
			s.drain(key)
			return struct{}{}, nil
		})
	}
	return true
}

// Pending 返回尚未执行完的任务数，包括正在执行的任务。
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, queue := range s.queues {
		n += len(queue)
	}
	return n
}

// Close 拒绝新任务并等待已提交的任务执行完毕。
func (s *Sequencer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

// drain 依次执行 key 队列中的任务，队列为空时删除该键。
// 正在执行的任务保留在队首，Submit 据此判断是否已有协程在处理该键。
func (s *Sequencer) drain(key string) {
	for {
		s.mu.Lock()
		queue := s.queues[key]
		if len(queue) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		fn := queue[0]
		s.mu.Unlock()

		s.run(key, fn)

		s.mu.Lock()
		s.queues[key] = s.queues[key][1:]
		s.mu.Unlock()
	}
}

// run 执行单个任务，任务 panic 不影响同一队列中的后续任务。
func (s *Sequencer) run(key string, fn func()) {
	defer func() {
		if x := recover(); x != nil {
			log.Error("sequenced task panicked", zap.String("key", key), zap.Any("panic", x))
		}
	}()
	fn()
}
