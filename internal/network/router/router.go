package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lk2023060901/danmu-chat-go/internal/network/serializer"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// Handler 是框架暴露给业务层的通用处理函数签名。
//
//   - ctx：请求上下文，携带日志字段、trace 以及发起请求的对端（见 rpc.PeerFromContext）；
//   - req：已经反序列化的请求对象，具体类型由 Route.NewRequest 决定；
//   - 返回的 resp 会作为响应 payload 发回对端，为 nil 时发送空 payload；
//     err 会被转换为响应头中的错误码与原因。
type Handler func(ctx context.Context, req any) (resp any, err error)

// Route 描述一条路由规则：请求协议号 -> 请求类型 + 业务 Handler。
type Route struct {
	// NewRequest 用于创建一个空的请求对象实例，必须返回指针。
	NewRequest func() any

	// Handler 为业务层实现的处理函数。
	Handler Handler
}

// Handle 将强类型的处理函数包装为 Route。
func Handle[Req any, Resp any](fn func(ctx context.Context, req *Req) (*Resp, error)) Route {
	return Route{
		NewRequest: func() any { return new(Req) },
		Handler: func(ctx context.Context, req any) (any, error) {
			resp, err := fn(ctx, req.(*Req))
			if err != nil || resp == nil {
				return nil, err
			}
			return resp, nil
		},
	}
}

// Router 维护协议号到路由规则的映射，并负责从“明文字节”到业务 Handler 的调度。
//
// 典型调用链：
//  1. Codec 从连接读取出 header + payload；
//  2. rpc.Peer 对请求帧调用 Router.Dispatch(ctx, header.Op, payload)；
//  3. Router 根据 op 找到 Route，反序列化请求并调用 Handler；
//  4. rpc.Peer 将返回值或错误写回对端。
type Router interface {
	// Register 为协议号 op 注册一条路由规则，同一协议号不允许重复注册。
	Register(op uint32, route Route) error

	// Dispatch 处理一条请求，未注册的 op 返回 merr.ErrServiceUnimplemented。
	Dispatch(ctx context.Context, op uint32, payload []byte) (resp any, err error)

	// Ops 返回已注册的协议号，按升序排列。
	Ops() []uint32
}

// defaultRouter 是 Router 接口的基础实现。
type defaultRouter struct {
	ser serializer.Serializer

	mu     sync.RWMutex
	routes map[uint32]Route
}

// 编译期断言：确保 defaultRouter 实现了 Router 接口。
var _ Router = (*defaultRouter)(nil)

// New 创建一个基于给定 Serializer 的 Router 实例。
func New(ser serializer.Serializer) Router {
	if ser == nil {
		ser = serializer.JSONSerializer{}
	}
	return &defaultRouter{
		ser:    ser,
		routes: make(map[uint32]Route),
	}
}

// Register 实现 Router.Register。
func (r *defaultRouter) Register(op uint32, route Route) error {
	if op == 0 {
		return fmt.Errorf("router: op must not be 0")
	}
	if route.NewRequest == nil {
		return fmt.Errorf("router: NewRequest is nil for op=%d", op)
	}
	if route.Handler == nil {
		return fmt.Errorf("router: Handler is nil for op=%d", op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[op]; exists {
		return fmt.Errorf("router: op=%d already registered", op)
	}
	r.routes[op] = route
	return nil
}

// Dispatch 实现 Router.Dispatch。
func (r *defaultRouter) Dispatch(ctx context.Context, op uint32, payload []byte) (any, error) {
	r.mu.RLock()
	route, ok := r.routes[op]
	r.mu.RUnlock()
	if !ok {
		return nil, merr.WrapErrServiceUnimplemented(fmt.Sprint(op))
	}

	req := route.NewRequest()
	if req == nil {
		return nil, merr.WrapErrServiceInternal(fmt.Sprintf("NewRequest returned nil for op=%d", op))
	}
	if len(payload) > 0 {
		if err := r.ser.Unmarshal(payload, req); err != nil {
			return nil, merr.WrapErrInvalidArgument(fmt.Sprintf("malformed request payload for op %d", op))
		}
	}
	return route.Handler(ctx, req)
}

// Ops 实现 Router.Ops。
func (r *defaultRouter) Ops() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]uint32, 0, len(r.routes))
	for op := range r.routes {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
