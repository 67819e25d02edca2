package broker

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/conc"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

const fanOutRateGroup = "broker.fanout"

// FanOutOption 用于定制 FanOut。
type FanOutOption func(*FanOut)

// WithDeliveryTimeout 设置单个接收者的投递超时，<= 0 表示不限制。
func WithDeliveryTimeout(d time.Duration) FanOutOption {
	return func(f *FanOut) {
		f.timeout = d
	}
}

// WithRejectStaleRoster 为 true 时，下标基于过期名单版本的私信直接返回 ErrStaleRoster。
func WithRejectStaleRoster(reject bool) FanOutOption {
	return func(f *FanOut) {
		f.rejectStale = reject
	}
}

// WithEvictHook 设置成员因投递失败被移出名单后的回调。
func WithEvictHook(fn func(evicted []*Participant)) FanOutOption {
	return func(f *FanOut) {
		f.onEvict = fn
	}
}

// FanOut 负责把消息并行投递给名单中的多个成员。
//
// 广播与名单推送路径上投递失败的成员会被移出名单；私信与显式的 UpdateRoster 只记录日志。
type FanOut struct {
	registry    *Registry
	pool        *conc.Pool[struct{}]
	timeout     time.Duration
	rejectStale bool
	onEvict     func(evicted []*Participant)
}

// NewFanOut 创建 FanOut，投递任务提交到 pool 中执行。
func NewFanOut(registry *Registry, pool *conc.Pool[struct{}], opts ...FanOutOption) *FanOut {
	f := &FanOut{
		registry: registry,
		pool:     pool,
		timeout:  3 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Broadcast 向所有当前成员投递 text，返回被移出名单的人数。
//
// 投递失败的成员在本轮结束后一次性移除；若有人被移除且名单非空，则推送新名单。
func (f *FanOut) Broadcast(ctx context.Context, text string) int {
	roster := f.registry.Snapshot()
	failed := f.deliver(ctx, metrics.KindBroadcast, roster.Members, func(ctx context.Context, cb Callback) error {
		return cb.Deliver(ctx, text)
	})
	if len(failed) == 0 {
		return 0
	}

	after, evicted := f.evict(ctx, failed)
	if len(evicted) > 0 && after.Len() > 0 {
		return len(evicted) + f.PushRoster(ctx)
	}
	return len(evicted)
}

// PushRoster 将当前名单推送给所有成员，返回被移出名单的人数。
//
// 推送失败的成员会被移除，然后向剩余成员重新推送，直到某一轮没有人被移除。
func (f *FanOut) PushRoster(ctx context.Context) int {
	total := 0
	roster := f.registry.Snapshot()
	for roster.Len() > 0 {
		names, gen := roster.Names, roster.Generation
		failed := f.deliver(ctx, metrics.KindRoster, roster.Members, func(ctx context.Context, cb Callback) error {
			return cb.UpdateRoster(ctx, names, gen)
		})
		if len(failed) == 0 {
			break
		}
		var evicted []*Participant
		roster, evicted = f.evict(ctx, failed)
		if len(evicted) == 0 {
			// 失败者已被并发移除，移除方负责推送。
			break
		}
		total += len(evicted)
	}
	return total
}

// UpdateRoster 将 names 推送给所有当前成员，失败只记录日志，返回失败人数。
func (f *FanOut) UpdateRoster(ctx context.Context, names []string, generation uint64) int {
	roster := f.registry.Snapshot()
	failed := f.deliver(ctx, metrics.KindRoster, roster.Members, func(ctx context.Context, cb Callback) error {
		return cb.UpdateRoster(ctx, names, generation)
	})
	return len(failed)
}

// SendPrivate 按当前名单解析 indices 并投递 text，返回成功投递的人数。
//
// 越界下标跳过并告警；投递失败只记录日志，不移除接收者。
// generation 非 0 且与当前名单版本不一致时，按配置告警或返回 ErrStaleRoster。
func (f *FanOut) SendPrivate(ctx context.Context, indices []int, text string, generation uint64) (int, error) {
	if len(indices) == 0 {
		return 0, merr.WrapErrInvalidArgument("Recipient indices cannot be null or empty")
	}
	if strings.TrimSpace(text) == "" {
		return 0, merr.WrapErrInvalidArgument("Private message cannot be null or empty")
	}

	resolved, skipped, current := f.registry.Resolve(indices)
	logger := log.Ctx(ctx)
	if generation != 0 && generation != current {
		if f.rejectStale {
			return 0, merr.WrapErrStaleRoster(generation, current)
		}
		logger.Warn("private message addressed against a stale roster",
			zap.Uint64("expected", generation),
			log.FieldGeneration(current))
	}
	for _, idx := range skipped {
		logger.Warn("invalid recipient index", zap.Int("index", idx))
	}

	failed := f.deliver(ctx, metrics.KindPrivate, resolved, func(ctx context.Context, cb Callback) error {
		return cb.Deliver(ctx, text)
	})
	return len(resolved) - len(failed), nil
}

func (f *FanOut) evict(ctx context.Context, failed []*Participant) (Roster, []*Participant) {
	roster, evicted := f.registry.Evict(failed...)
	if len(evicted) == 0 {
		return roster, nil
	}
	for _, p := range evicted {
		log.Ctx(ctx).Info("participant evicted after failed delivery",
			log.FieldUsername(p.Name),
			log.FieldGeneration(roster.Generation))
	}
	if f.onEvict != nil {
		f.onEvict(evicted)
	}
	return roster, evicted
}

// deliver 并行调用 call，返回失败的成员，顺序与 members 一致。
func (f *FanOut) deliver(ctx context.Context, kind string, members []*Participant, call func(ctx context.Context, cb Callback) error) []*Participant {
	if len(members) == 0 {
		return nil
	}
	// 发起方断开不应影响对其他成员的投递。
	ctx = context.WithoutCancel(ctx)

	futures := make([]*conc.Future[struct{}], len(members))
	for i, p := range members {
		futures[i] = f.pool.Submit(func() (struct{}, error) {
			callCtx, cancel := f.withTimeout(ctx)
			defer cancel()

			start := time.Now()
			err := call(callCtx, p.Callback)
			metrics.DeliveryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			if err != nil {
				return struct{}{}, merr.WrapErrDeliveryFailure(p.Name, err)
			}
			return struct{}{}, nil
		})
	}

	logger := log.Ctx(ctx).WithRateGroup(fanOutRateGroup, 1, 60)
	var failed []*Participant
	for i, future := range futures {
		if _, err := future.Await(); err != nil {
			failed = append(failed, members[i])
			metrics.DeliveriesTotal.WithLabelValues(kind, metrics.ResultFailure).Inc()
			logger.RatedWarn(1, "delivery failed",
				zap.String("kind", kind),
				log.FieldUsername(members[i].Name),
				zap.Error(err))
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues(kind, metrics.ResultSuccess).Inc()
	}
	return failed
}

func (f *FanOut) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}
