package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/internal/chatfmt"
	"github.com/lk2023060901/danmu-chat-go/internal/config"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/connector"
	"github.com/lk2023060901/danmu-chat-go/internal/network/router"
	"github.com/lk2023060901/danmu-chat-go/internal/network/rpc"
	"github.com/lk2023060901/danmu-chat-go/internal/protocol"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/conc"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

const (
	leaveNotice    = "Has Left The Chat"
	connectedLine  = "Successfully connected to chat server"
	connectionLost = "Connection lost"

	titleConnection   = "Connection Error"
	titleRegistration = "Registration Error"
	titleJoin         = "Join Error"
)

// Option 用于定制 Session。
type Option func(*Session)

// WithClock 设置重试退避与消息时间戳使用的时钟。
func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithDialHook 包装拨号函数，可用于注入故障。
func WithDialHook(hook func(next DialFunc) DialFunc) Option {
	return func(s *Session) {
		s.dialHooks = append(s.dialHooks, hook)
	}
}

// WithDispatchQueueSize 设置待分发界面更新的队列长度。
func WithDispatchQueueSize(size int) Option {
	return func(s *Session) {
		s.queueSize = size
	}
}

// Session 表示一个聊天成员与服务端之间的会话。
type Session struct {
	log.Binder

	cfg      config.ClientConfig
	username string
	endpoint string

	clock     clockwork.Clock
	dialHooks []func(DialFunc) DialFunc
	queueSize int

	sink      *Dispatcher
	format    *chatfmt.Formatter
	codec     codec.Codec
	connector connector.Connector
	router    router.Router
	conn      *ConnectionManager

	state      atomic.Int32
	generation atomic.Uint64

	mu     sync.Mutex
	peer   *rpc.Peer
	roster []string
	cancel context.CancelFunc
}

// NewSession 校验用户名并创建向 sink 报告状态的会话，此时尚未连接。
func NewSession(cfg config.ClientConfig, username string, sink Sink, opts ...Option) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, merr.WrapErrInvalidArgument("Please enter your name to start")
	}
	if !chatfmt.ValidUsername(username) {
		return nil, merr.WrapErrInvalidUsername(username)
	}

	c, err := cfg.Network.NewCodec()
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		username: username,
		endpoint: protocol.EndpointName(username),
		codec:    c,
		router:   router.New(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	s.sink = NewDispatcher(sink, s.queueSize)
	s.format = chatfmt.New(s.clock)
	s.connector = connector.NewTCPConnector(c, connector.Config{
		DialTimeout:   cfg.DialTimeout,
		SendQueueSize: cfg.Network.SendQueueSize,
	})

	if err := s.routes(); err != nil {
		return nil, err
	}

	dial := DialFunc(s.dial)
	for _, hook := range s.dialHooks {
		dial = hook(dial)
	}
	s.conn = NewConnectionManager(cfg.Addr(), dial, cfg.MaxAttempts, cfg.RetryBackoff, s.clock)
	return s, nil
}

func (s *Session) routes() error {
	if err := s.router.Register(protocol.OpDeliver, router.Handle(s.onDeliver)); err != nil {
		return err
	}
	return s.router.Register(protocol.OpUpdateRoster, router.Handle(s.onUpdateRoster))
}

func (s *Session) dial(ctx context.Context, addr string) (*rpc.Peer, error) {
	return rpc.Dial(ctx, s.connector, s.codec, addr, s.onClosed,
		rpc.WithRouter(s.router),
		rpc.WithCallTimeout(s.cfg.CallTimeout),
		rpc.WithOpNamer(protocol.OpName))
}

// Username 返回去除首尾空白后的用户名。
func (s *Session) Username() string {
	return s.username
}

// State 返回当前所处的生命周期阶段。
func (s *Session) State() State {
	return State(s.state.Load())
}

// Generation 返回最近收到的名单版本。
func (s *Session) Generation() uint64 {
	return s.generation.Load()
}

// Roster 返回最近一次名单的副本。
func (s *Session) Roster() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roster...)
}

// AppendMessage 经由分发协程向界面追加一行文本，与会话自身产生的更新保持先后顺序。
func (s *Session) AppendMessage(text string) {
	s.sink.AppendMessage(text)
}

// ShowError 经由分发协程向界面展示错误。
func (s *Session) ShowError(title, message string) {
	s.sink.ShowError(title, message)
}

func (s *Session) ctx(ctx context.Context) context.Context {
	if _, ok := ctx.Value(log.CtxLogKey).(*log.MLogger); !ok {
		ctx = context.WithValue(ctx, log.CtxLogKey, s.Logger())
	}
	return log.WithUsername(ctx, s.username)
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.Logger().Debug("session state changed",
			log.FieldUsername(s.username),
			zap.Stringer("from", old),
			zap.Stringer("to", st))
	}
}

func (s *Session) currentPeer() *rpc.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Start 在后台协程中执行 Connect。
func (s *Session) Start(ctx context.Context) *conc.Future[struct{}] {
	return conc.Go(func() (struct{}, error) {
		return struct{}{}, s.Connect(ctx)
	})
}

// Cancel 中止进行中的 Connect。
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Connect 依次完成连接、注册与加入。失败时在界面展示错误并返回；
// 被取消时会话回到 Disconnected，不展示错误。
func (s *Session) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(s.ctx(ctx))
	if err := s.beginConnect(cancel); err != nil {
		cancel()
		return err
	}
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()
	logger := s.Ctx(ctx)

	peer, err := s.conn.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("connect cancelled")
			s.setState(StateDisconnected)
			return err
		}
		s.fail(nil, titleConnection, err.Error())
		return err
	}
	s.mu.Lock()
	s.peer = peer
	s.mu.Unlock()

	var registered protocol.RegisterResponse
	err = peer.Call(ctx, protocol.OpRegister, &protocol.RegisterRequest{
		Endpoint: s.endpoint,
		Version:  protocol.Version,
	}, &registered)
	if err != nil {
		if ctx.Err() != nil {
			s.abort(peer)
			return ctx.Err()
		}
		err = merr.WrapErrRegistrationFailure(err)
		s.fail(peer, titleRegistration, err.Error())
		return err
	}
	s.setState(StateRegistered)
	logger.Info("client registered",
		zap.String("endpoint", s.endpoint),
		zap.String("service", registered.Service),
		zap.String("serverVersion", registered.ServerVersion))

	var joined protocol.JoinResponse
	err = peer.Call(ctx, protocol.OpJoin, &protocol.JoinRequest{
		Username:    s.username,
		HostAddress: hostAddress(peer),
		Endpoint:    s.endpoint,
	}, &joined)
	if err != nil {
		if ctx.Err() != nil {
			s.abort(peer)
			return ctx.Err()
		}
		s.fail(peer, titleJoin, err.Error())
		return err
	}
	s.setState(StateJoined)
	s.observeGeneration(joined.Generation)

	s.setState(StateConnected)
	s.sink.SetConnected(true)
	s.sink.AppendMessage(s.format.Server(connectedLine))
	logger.Info("joined chat", log.FieldGeneration(joined.Generation))
	return nil
}

// beginConnect 切换到 Connecting 并登记 cancel，两者在同一临界区内完成，
// 观察到 Connecting 之后调用 Cancel 一定能取消本次连接。
func (s *Session) beginConnect(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		st := s.state.Load()
		if st != int32(StateDisconnected) && st != int32(StateFailed) {
			return merr.WrapErrInvalidArgument(fmt.Sprintf("cannot connect while %s", State(st)))
		}
		if s.state.CompareAndSwap(st, int32(StateConnecting)) {
			s.cancel = cancel
			return nil
		}
	}
}

func (s *Session) fail(peer *rpc.Peer, title, message string) {
	s.setState(StateFailed)
	if peer != nil {
		_ = peer.Close()
	}
	s.Logger().Warn("connect failed",
		log.FieldUsername(s.username),
		zap.String("title", title),
		zap.String("reason", message))
	s.sink.SetConnected(false)
	s.sink.ShowError(title, message)
}

func (s *Session) abort(peer *rpc.Peer) {
	s.setState(StateDisconnected)
	_ = peer.Close()
}

// Send 向所有成员广播 message。
func (s *Session) Send(ctx context.Context, message string) error {
	peer, err := s.connected()
	if err != nil {
		return err
	}
	message, err = s.checkMessage(message)
	if err != nil {
		return err
	}
	return peer.Call(s.ctx(ctx), protocol.OpUpdateChat, &protocol.UpdateChatRequest{
		Username: s.username,
		Message:  message,
	}, nil)
}

// SendPrivate 按最近一次名单的下标发送私信，返回服务端成功投递的人数。
func (s *Session) SendPrivate(ctx context.Context, indices []int, message string) (int, error) {
	peer, err := s.connected()
	if err != nil {
		return 0, err
	}
	if len(indices) == 0 {
		return 0, merr.WrapErrInvalidArgument("Please select at least one user for private message")
	}
	message, err = s.checkMessage(message)
	if err != nil {
		return 0, err
	}

	var resp protocol.SendPMResponse
	err = peer.Call(s.ctx(ctx), protocol.OpSendPM, &protocol.SendPMRequest{
		Indices:    indices,
		Message:    s.format.Private(s.username, message),
		Generation: s.generation.Load(),
	}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Delivered, nil
}

// RefreshRoster 向服务端拉取当前名单并展示。
func (s *Session) RefreshRoster(ctx context.Context) ([]string, error) {
	peer, err := s.connected()
	if err != nil {
		return nil, err
	}
	var resp protocol.RosterResponse
	if err := peer.Call(s.ctx(ctx), protocol.OpRoster, &protocol.Empty{}, &resp); err != nil {
		return nil, err
	}
	s.applyRoster(resp.Names, resp.Generation)
	return resp.Names, nil
}

func (s *Session) connected() (*rpc.Peer, error) {
	if s.State() != StateConnected {
		return nil, merr.WrapErrNotConnected()
	}
	peer := s.currentPeer()
	if peer == nil {
		return nil, merr.WrapErrNotConnected()
	}
	return peer, nil
}

func (s *Session) checkMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", merr.WrapErrInvalidArgument("Please enter a message")
	}
	if s.cfg.MaxMessageLen > 0 && utf8.RuneCountInString(message) > s.cfg.MaxMessageLen {
		return "", merr.WrapErrInvalidArgument(fmt.Sprintf("Message must be %d characters or less", s.cfg.MaxMessageLen))
	}
	return message, nil
}

// Disconnect 广播离开通知、退出聊天并关闭连接，通知与退出失败只记录日志。
func (s *Session) Disconnect(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return nil
	}
	ctx = s.ctx(ctx)
	logger := s.Ctx(ctx)

	peer := s.currentPeer()
	if err := peer.Call(ctx, protocol.OpUpdateChat, &protocol.UpdateChatRequest{
		Username: s.username,
		Message:  leaveNotice,
	}, nil); err != nil {
		logger.Warn("failed to announce leave", zap.Error(err))
	}
	if err := peer.Call(ctx, protocol.OpLeave, &protocol.LeaveRequest{Username: s.username}, nil); err != nil {
		logger.Warn("failed to leave chat", zap.Error(err))
	}
	_ = peer.Close()

	s.sink.SetConnected(false)
	logger.Info("Disconnected from chat server")
	return nil
}

// Close 断开连接并刷新尚未分发的界面更新，之后会话不可再用。
func (s *Session) Close(ctx context.Context) error {
	s.Cancel()
	err := s.Disconnect(ctx)
	s.sink.Close()
	return err
}

func (s *Session) onDeliver(ctx context.Context, req *protocol.DeliverRequest) (*protocol.Empty, error) {
	if !s.State().acceptsCallbacks() {
		log.Ctx(ctx).Debug("message ignored", zap.Stringer("state", s.State()))
		return &protocol.Empty{}, nil
	}
	if req.Text == "" {
		log.Ctx(ctx).Warn("Received null message from server")
		return &protocol.Empty{}, nil
	}
	s.sink.AppendMessage(req.Text)
	return &protocol.Empty{}, nil
}

func (s *Session) onUpdateRoster(ctx context.Context, req *protocol.UpdateRosterRequest) (*protocol.Empty, error) {
	if !s.State().acceptsCallbacks() {
		log.Ctx(ctx).Debug("roster ignored", zap.Stringer("state", s.State()))
		return &protocol.Empty{}, nil
	}
	if req.Names == nil {
		log.Ctx(ctx).Warn("Received null user list from server")
		return &protocol.Empty{}, nil
	}
	s.applyRoster(req.Names, req.Generation)
	return &protocol.Empty{}, nil
}

func (s *Session) applyRoster(names []string, generation uint64) {
	s.mu.Lock()
	if generation < s.generation.Load() {
		s.mu.Unlock()
		return
	}
	s.roster = append([]string(nil), names...)
	s.generation.Store(generation)
	s.mu.Unlock()
	s.sink.UpdateRoster(names)
}

func (s *Session) observeGeneration(generation uint64) {
	for {
		cur := s.generation.Load()
		if generation <= cur || s.generation.CompareAndSwap(cur, generation) {
			return
		}
	}
}

func (s *Session) onClosed(p *rpc.Peer, err error) {
	if s.currentPeer() != p {
		return
	}
	if !s.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return
	}
	s.Logger().Warn("connection to chat server lost", log.FieldUsername(s.username), zap.Error(err))
	s.sink.SetConnected(false)
	s.sink.ShowError(titleConnection, connectionLost)
}

func hostAddress(p *rpc.Peer) string {
	addr := p.Session().LocalAddr()
	if addr == nil {
		return "localhost"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}
