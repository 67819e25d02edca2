// Package broker 实现聊天服务端：在线名单、消息扇出以及对外的 RPC 服务。
package broker

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/internal/chatfmt"
	"github.com/lk2023060901/danmu-chat-go/internal/config"
	"github.com/lk2023060901/danmu-chat-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/router"
	"github.com/lk2023060901/danmu-chat-go/internal/network/rpc"
	"github.com/lk2023060901/danmu-chat-go/internal/protocol"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/conc"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/hardware"
)

// fanOutWorkersPerCPU 为未显式配置时每个 CPU 分配的投递协程数，投递以等待网络为主。
const fanOutWorkersPerCPU = 8

// Server 将 Service 挂载到 TCP 接入层之上。
type Server struct {
	log.Binder

	cfg      config.BrokerConfig
	acceptor *acceptor.BaseAcceptor
	handler  *rpc.ServerHandler
	pool     *conc.Pool[struct{}]

	registry  *Registry
	endpoints *Directory
	service   *Service
}

// NewServer 按配置创建 Server 并开始监听，调用 Serve 后才会接受连接。
func NewServer(cfg config.BrokerConfig) (*Server, error) {
	c, err := cfg.Network.NewCodec()
	if err != nil {
		return nil, err
	}

	workers := cfg.FanoutWorkers
	if workers <= 0 {
		workers = hardware.GetCPUNum() * fanOutWorkersPerCPU
	}

	s := &Server{
		cfg:       cfg,
		pool:      conc.NewPool[struct{}](workers, conc.WithName("fanout"), conc.WithConcealPanic(true)),
		registry:  NewRegistry(),
		endpoints: NewDirectory(),
	}
	fanout := NewFanOut(s.registry, s.pool,
		WithDeliveryTimeout(cfg.CallTimeout),
		WithRejectStaleRoster(cfg.RejectStaleRoster),
		WithEvictHook(closeEvicted))
	s.service = NewService(cfg.ServiceName, s.registry, fanout, s.endpoints, chatfmt.New(nil))

	r := router.New(nil)
	if err := s.service.Routes(r); err != nil {
		s.pool.Release()
		return nil, err
	}

	acfg := acceptor.Config{
		SendQueueSize: cfg.Network.SendQueueSize,
		ReadTimeout:   cfg.ReadTimeout,
	}
	s.handler = rpc.NewServerHandler(acfg, rpc.ServerHooks{
		OnPeerOpened: s.peerOpened,
		OnPeerClosed: s.peerClosed,
	}, rpc.WithRouter(r), rpc.WithCallTimeout(cfg.CallTimeout), rpc.WithOpNamer(protocol.OpName))

	s.acceptor, err = acceptor.NewTCPAcceptor(cfg.Listen, c, nil, acfg)
	if err != nil {
		s.pool.Release()
		return nil, err
	}
	return s, nil
}

// Serve 接受连接直至 ctx 取消或 Close 被调用。
func (s *Server) Serve(ctx context.Context) error {
	defer s.pool.Release()
	defer s.service.Close()
	fields := []zap.Field{
		zap.String("service", s.cfg.ServiceName),
		zap.Stringer("addr", s.Addr()),
		zap.Int("fanoutWorkers", s.pool.Cap()),
	}
	s.Logger().Info("chat broker is serving", append(fields, hardware.Fields()...)...)
	return s.acceptor.Serve(ctx, s.handler)
}

// Close 停止监听并断开所有连接。
func (s *Server) Close() error {
	err := s.acceptor.Close()
	s.service.Close()
	s.pool.Release()
	return err
}

// Addr 返回实际监听地址。
func (s *Server) Addr() net.Addr {
	return s.acceptor.Addr()
}

// Connections 返回当前连接数，包括尚未加入聊天的连接。
func (s *Server) Connections() int {
	return s.acceptor.Sessions().Count()
}

// Registry 返回在线名单。
func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) peerOpened(p *rpc.Peer) {
	metrics.Sessions.Inc()
	s.Logger().Debug("client connected", log.FieldSessionID(p.Session().ID()), zap.Stringer("remote", p.Session().RemoteAddr()))
}

func (s *Server) peerClosed(p *rpc.Peer, err error) {
	metrics.Sessions.Dec()
	s.Logger().Debug("client disconnected", log.FieldSessionID(p.Session().ID()), zap.Error(err))
	s.service.PeerClosed(p)
}
