package session

import (
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// BaseSessionManager 是以 session id 为键的内存索引，并发安全。
type BaseSessionManager struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

var _ SessionManager = (*BaseSessionManager)(nil)

// NewBaseSessionManager 创建一个空的 BaseSessionManager。
func NewBaseSessionManager() *BaseSessionManager {
	return &BaseSessionManager{
		sessions: make(map[string]Session),
	}
}

func (m *BaseSessionManager) Register(sess Session) error {
	if sess == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sess.ID()]; exists {
		return merr.WrapErrServiceInternal("session already registered", sess.ID())
	}
	m.sessions[sess.ID()] = sess
	return nil
}

func (m *BaseSessionManager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *BaseSessionManager) Unregister(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[id]; !exists {
		return merr.WrapErrServiceInternal("session not found", id)
	}
	delete(m.sessions, id)
	return nil
}

// Range 在快照上回调 fn，回调期间不持锁。
func (m *BaseSessionManager) Range(fn func(sess Session) bool) {
	if fn == nil {
		return
	}
	m.mu.RLock()
	snapshot := lo.Values(m.sessions)
	m.mu.RUnlock()

	for _, sess := range snapshot {
		if !fn(sess) {
			return
		}
	}
}

func (m *BaseSessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
