package broker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/internal/chatfmt"
	"github.com/lk2023060901/danmu-chat-go/internal/network/router"
	"github.com/lk2023060901/danmu-chat-go/internal/network/rpc"
	"github.com/lk2023060901/danmu-chat-go/internal/protocol"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// Service 实现服务端对外暴露的 RPC 操作。
type Service struct {
	name      string
	registry  *Registry
	fanout    *FanOut
	endpoints *Directory
	format    *chatfmt.Formatter
	sequencer *Sequencer
}

// NewService 组装 Service。format 为 nil 时使用系统时钟。
//
// 加入、离开与聊天消息的扇出在响应发起方之后异步执行，同一连接触发的扇出按提交顺序串行。
func NewService(name string, registry *Registry, fanout *FanOut, endpoints *Directory, format *chatfmt.Formatter) *Service {
	if format == nil {
		format = chatfmt.New(nil)
	}
	return &Service{
		name:      name,
		registry:  registry,
		fanout:    fanout,
		endpoints: endpoints,
		format:    format,
		sequencer: NewSequencer(),
	}
}

// Close 停止接受新的扇出任务，并等待已提交的任务完成。
func (s *Service) Close() {
	s.sequencer.Close()
}

// Pending 返回尚未完成的扇出任务数。
func (s *Service) Pending() int {
	return s.sequencer.Pending()
}

// enqueue 将 fn 排入发起连接的扇出队列，fn 收到的 ctx 不随请求结束而取消。
func (s *Service) enqueue(ctx context.Context, fallbackKey string, fn func(ctx context.Context)) {
	key := fallbackKey
	if p, ok := rpc.PeerFromContext(ctx); ok {
		key = p.Session().ID()
	}
	ctx = context.WithoutCancel(ctx)
	if !s.sequencer.Submit(key, func() { fn(ctx) }) {
		log.Ctx(ctx).Debug("fan-out dropped on shutdown")
	}
}

// Routes 将所有操作注册到 r。
func (s *Service) Routes(r router.Router) error {
	routes := []struct {
		op    uint32
		route router.Route
	}{
		{protocol.OpRegister, router.Handle(s.Register)},
		{protocol.OpJoin, router.Handle(s.Join)},
		{protocol.OpLeave, router.Handle(s.Leave)},
		{protocol.OpUpdateChat, router.Handle(s.UpdateChat)},
		{protocol.OpSendPM, router.Handle(s.SendPM)},
		{protocol.OpRoster, router.Handle(s.Roster)},
	}
	for _, rt := range routes {
		if err := r.Register(rt.op, rt.route); err != nil {
			return err
		}
	}
	return nil
}

// Register 将发起请求的连接登记为回调端点，同名端点会被覆盖。
func (s *Service) Register(ctx context.Context, req *protocol.RegisterRequest) (*protocol.RegisterResponse, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return nil, merr.WrapErrInvalidArgument("Client service name cannot be null or empty")
	}
	if err := protocol.CheckVersion(req.Version); err != nil {
		return nil, err
	}
	p, ok := rpc.PeerFromContext(ctx)
	if !ok {
		return nil, merr.WrapErrServiceInternal("no peer bound to request")
	}

	if prev := s.endpoints.Bind(endpoint, p); prev != nil && prev != p {
		log.Ctx(ctx).Info("callback endpoint rebound",
			zap.String("endpoint", endpoint),
			zap.Stringer("previous", prev))
	}
	log.Ctx(ctx).Debug("callback endpoint registered", zap.String("endpoint", endpoint))
	return &protocol.RegisterResponse{ServerVersion: protocol.Version, Service: s.name}, nil
}

// Join 将用户加入名单，广播加入通知并推送新名单。
func (s *Service) Join(ctx context.Context, req *protocol.JoinRequest) (*protocol.JoinResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, merr.WrapErrInvalidArgument("Username cannot be null or empty")
	}
	if !chatfmt.ValidUsername(username) {
		return nil, merr.WrapErrInvalidUsername(username)
	}
	if strings.TrimSpace(req.HostAddress) == "" {
		return nil, merr.WrapErrInvalidArgument("Hostname cannot be null or empty")
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return nil, merr.WrapErrInvalidArgument("Client service name cannot be null or empty")
	}

	p, ok := s.endpoints.Lookup(endpoint)
	if !ok {
		return nil, merr.WrapErrEndpointNotFound(endpoint)
	}

	ctx = log.WithUsername(ctx, username)
	roster, err := s.registry.Join(username, endpoint, NewPeerCallback(p))
	if err != nil {
		log.Ctx(ctx).Warn("join rejected", zap.Error(err))
		return nil, err
	}
	log.Ctx(ctx).Info("user joined the chat",
		zap.String("host", req.HostAddress),
		log.FieldGeneration(roster.Generation))

	text := s.format.Server(username + " has joined the chat!")
	s.enqueue(ctx, username, func(ctx context.Context) {
		s.fanout.Broadcast(ctx, text)
		s.fanout.PushRoster(ctx)
	})
	return &protocol.JoinResponse{Generation: s.registry.Generation()}, nil
}

// Leave 将用户移出名单，用户不存在时什么也不做。
func (s *Service) Leave(ctx context.Context, req *protocol.LeaveRequest) (*protocol.Empty, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, merr.WrapErrInvalidArgument("Username cannot be null or empty")
	}

	ctx = log.WithUsername(ctx, username)
	roster, removed := s.registry.Leave(username)
	if !removed {
		log.Ctx(ctx).Warn("attempted to remove non-existent user")
		return &protocol.Empty{}, nil
	}
	log.Ctx(ctx).Info("user left the chat", log.FieldGeneration(roster.Generation))
	if roster.Len() > 0 {
		s.enqueue(ctx, username, func(ctx context.Context) {
			s.fanout.PushRoster(ctx)
		})
	}
	return &protocol.Empty{}, nil
}

// UpdateChat 广播一条聊天消息。
func (s *Service) UpdateChat(ctx context.Context, req *protocol.UpdateChatRequest) (*protocol.Empty, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, merr.WrapErrInvalidArgument("Username cannot be null or empty")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, merr.WrapErrInvalidArgument("Chat message cannot be null or empty")
	}

	username := chatfmt.Sanitize(req.Username)
	message := chatfmt.Sanitize(req.Message)
	log.Ctx(ctx).Debug("broadcasting message", log.FieldUsername(username))
	text := s.format.Chat(username, message)
	s.enqueue(ctx, username, func(ctx context.Context) {
		s.fanout.Broadcast(ctx, text)
	})
	return &protocol.Empty{}, nil
}

// SendPM 将已格式化的私信投递给按下标选中的成员。
func (s *Service) SendPM(ctx context.Context, req *protocol.SendPMRequest) (*protocol.SendPMResponse, error) {
	delivered, err := s.fanout.SendPrivate(ctx, req.Indices, chatfmt.Sanitize(req.Message), req.Generation)
	if err != nil {
		return nil, err
	}
	return &protocol.SendPMResponse{Delivered: delivered}, nil
}

// Roster 返回当前名单快照。
func (s *Service) Roster(_ context.Context, _ *protocol.Empty) (*protocol.RosterResponse, error) {
	roster := s.registry.Snapshot()
	return &protocol.RosterResponse{Names: roster.Names, Generation: roster.Generation}, nil
}

// PeerClosed 在客户端连接断开时解除其端点绑定，并移除经由该连接加入的成员。
func (s *Service) PeerClosed(p *rpc.Peer) {
	ctx := log.WithFields(context.Background(), log.FieldSessionID(p.Session().ID()))

	endpoints := s.endpoints.UnbindPeer(p)
	roster, evicted := s.registry.EvictFunc(func(pt *Participant) bool {
		return boundTo(pt.Callback, p)
	})
	if len(endpoints) > 0 {
		log.Ctx(ctx).Debug("callback endpoints unbound", zap.Strings("endpoints", endpoints))
	}
	if len(evicted) == 0 {
		return
	}
	for _, pt := range evicted {
		log.Ctx(ctx).Info("participant connection closed without leaving",
			log.FieldUsername(pt.Name),
			log.FieldGeneration(roster.Generation))
	}
	if roster.Len() > 0 {
		s.sequencer.Submit(p.Session().ID(), func() {
			s.fanout.PushRoster(ctx)
		})
	}
}

// closeEvicted 断开被移出名单成员的连接，使客户端感知到断线。
func closeEvicted(evicted []*Participant) {
	for _, p := range evicted {
		if pc, ok := p.Callback.(*peerCallback); ok {
			_ = pc.peer.Close()
		}
	}
}
