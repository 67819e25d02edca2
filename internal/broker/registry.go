package broker

import (
	"strings"
	"sync"

	"github.com/lk2023060901/danmu-chat-go/internal/chatfmt"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/typeutil"
)

// Participant 表示一名在线用户。Name 在加入后不再改变。
type Participant struct {
	Name     string
	Endpoint string
	Callback Callback
}

// Roster 是名单在某一时刻的一致快照。
//
// Names 与 Members 一一对应，顺序即私信寻址所用的下标顺序。
type Roster struct {
	Names      []string
	Members    []*Participant
	Generation uint64
}

// Len 返回快照中的人数。
func (r Roster) Len() int {
	return len(r.Members)
}

// Registry 维护在线用户名单，所有读写都在同一把锁内完成。
//
// 名单按加入顺序排列，移除不改变其余成员的相对顺序。每次名单变化 Generation 加一。
type Registry struct {
	mu           sync.Mutex
	participants []*Participant
	// folded 保存小写化的用户名，用于大小写不敏感的查重。
	folded     typeutil.Set[string]
	generation uint64
}

// NewRegistry 创建一个空名单。
func NewRegistry() *Registry {
	return &Registry{folded: typeutil.NewSet[string]()}
}

// Join 校验用户名并将其追加到名单末尾。
func (r *Registry) Join(name, endpoint string, cb Callback) (Roster, error) {
	name = strings.TrimSpace(name)
	if !chatfmt.ValidUsername(name) {
		return Roster{}, merr.WrapErrInvalidUsername(name)
	}
	if cb == nil {
		return Roster{}, merr.WrapErrInvalidArgument("Client cannot be null")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	if r.folded.Contain(key) {
		return Roster{}, merr.WrapErrDuplicateUsername(name)
	}
	r.participants = append(r.participants, &Participant{Name: name, Endpoint: endpoint, Callback: cb})
	r.folded.Insert(key)
	r.changedLocked()
	return r.snapshotLocked(), nil
}

// Leave 移除第一个名字完全相同的成员。名字不存在时什么也不做，removed 为 false。
func (r *Registry) Leave(name string) (roster Roster, removed bool) {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.participants {
		if p.Name == name {
			r.removeAtLocked(i)
			r.changedLocked()
			return r.snapshotLocked(), true
		}
	}
	return r.snapshotLocked(), false
}

// Evict 一次性移除给定成员，返回移除后的名单与实际被移除的成员。
// 已经不在名单中的成员会被忽略。
func (r *Registry) Evict(members ...*Participant) (Roster, []*Participant) {
	if len(members) == 0 {
		return r.Snapshot(), nil
	}
	targets := typeutil.NewSet(members...)
	return r.EvictFunc(func(p *Participant) bool { return targets.Contain(p) })
}

// EvictFunc 移除所有满足 match 的成员。
func (r *Registry) EvictFunc(match func(p *Participant) bool) (Roster, []*Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := r.evictLocked(match)
	return r.snapshotLocked(), evicted
}

func (r *Registry) evictLocked(match func(p *Participant) bool) []*Participant {
	var evicted []*Participant
	kept := r.participants[:0]
	for _, p := range r.participants {
		if match(p) {
			r.folded.Remove(strings.ToLower(p.Name))
			evicted = append(evicted, p)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(r.participants); i++ {
		r.participants[i] = nil
	}
	r.participants = kept
	if len(evicted) > 0 {
		metrics.EvictionsTotal.Add(float64(len(evicted)))
		r.changedLocked()
	}
	return evicted
}

// Resolve 按当前名单解析下标。越界的下标原样放入 skipped。
func (r *Registry) Resolve(indices []int) (resolved []*Participant, skipped []int, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, idx := range indices {
		if idx < 0 || idx >= len(r.participants) {
			skipped = append(skipped, idx)
			continue
		}
		resolved = append(resolved, r.participants[idx])
	}
	return resolved, skipped, r.generation
}

// Snapshot 返回当前名单的一致快照。
func (r *Registry) Snapshot() Roster {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Names 返回当前名单中的用户名，按加入顺序。
func (r *Registry) Names() []string {
	return r.Snapshot().Names
}

// Count 返回在线人数。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Generation 返回当前名单版本。
func (r *Registry) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

func (r *Registry) removeAtLocked(i int) {
	r.folded.Remove(strings.ToLower(r.participants[i].Name))
	copy(r.participants[i:], r.participants[i+1:])
	r.participants[len(r.participants)-1] = nil
	r.participants = r.participants[:len(r.participants)-1]
}

func (r *Registry) changedLocked() {
	r.generation++
	metrics.Participants.Set(float64(len(r.participants)))
}

func (r *Registry) snapshotLocked() Roster {
	roster := Roster{
		Names:      make([]string, len(r.participants)),
		Members:    make([]*Participant, len(r.participants)),
		Generation: r.generation,
	}
	for i, p := range r.participants {
		roster.Names[i] = p.Name
		roster.Members[i] = p
	}
	return roster
}
