package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-chat-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/connector"
	"github.com/lk2023060901/danmu-chat-go/internal/network/router"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

const (
	opEcho uint32 = iota + 1
	opNested
	opFail
	opSlow
	opUnknown

	opClientPing uint32 = 101
)

type textMsg struct {
	Text string `json:"text"`
}

type RPCSuite struct {
	suite.Suite

	codec    codec.Codec
	acceptor *acceptor.BaseAcceptor
	cancel   context.CancelFunc
	served   chan error
	opened   chan *Peer
	closed   chan *Peer
}

func (s *RPCSuite) SetupTest() {
	s.codec = codec.NewDefault()
	r := router.New(nil)
	s.Require().NoError(r.Register(opEcho, router.Handle(func(_ context.Context, req *textMsg) (*textMsg, error) {
		return &textMsg{Text: "echo:" + req.Text}, nil
	})))
	s.Require().NoError(r.Register(opNested, router.Handle(func(ctx context.Context, req *textMsg) (*textMsg, error) {
		p, ok := PeerFromContext(ctx)
		if !ok {
			return nil, merr.WrapErrServiceInternal("no peer in context")
		}
		var pong textMsg
		if err := p.Call(ctx, opClientPing, req, &pong); err != nil {
			return nil, err
		}
		return &textMsg{Text: "nested:" + pong.Text}, nil
	})))
	s.Require().NoError(r.Register(opFail, router.Handle(func(_ context.Context, req *textMsg) (*textMsg, error) {
		return nil, merr.WrapErrDuplicateUsername(req.Text)
	})))
	s.Require().NoError(r.Register(opSlow, router.Handle(func(ctx context.Context, _ *textMsg) (*textMsg, error) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return &textMsg{}, nil
	})))

	s.opened = make(chan *Peer, 4)
	s.closed = make(chan *Peer, 4)
	handler := NewServerHandler(acceptor.Config{}, ServerHooks{
		OnPeerOpened: func(p *Peer) { s.opened <- p },
		OnPeerClosed: func(p *Peer, _ error) { s.closed <- p },
	}, WithRouter(r), WithCallTimeout(time.Second))

	a, err := acceptor.NewTCPAcceptor("127.0.0.1:0", s.codec, nil, acceptor.Config{})
	s.Require().NoError(err)
	s.acceptor = a

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.served = make(chan error, 1)
	go func() { s.served <- a.Serve(ctx, handler) }()
}

func (s *RPCSuite) TearDownTest() {
	s.cancel()
	<-s.served
}

func (s *RPCSuite) dial(opts ...Option) *Peer {
	clientRouter := router.New(nil)
	s.Require().NoError(clientRouter.Register(opClientPing, router.Handle(func(_ context.Context, req *textMsg) (*textMsg, error) {
		return &textMsg{Text: "pong:" + req.Text}, nil
	})))
	opts = append([]Option{WithRouter(clientRouter)}, opts...)
	p, err := Dial(context.Background(), connector.NewTCPConnector(s.codec, connector.Config{}), s.codec,
		s.acceptor.Addr().String(), nil, opts...)
	s.Require().NoError(err)
	return p
}

func (s *RPCSuite) TestCall() {
	p := s.dial()
	defer p.Close()

	var resp textMsg
	s.Require().NoError(p.Call(context.Background(), opEcho, &textMsg{Text: "hi"}, &resp))
	s.Equal("echo:hi", resp.Text)

	// 响应可以被忽略。
	s.NoError(p.Call(context.Background(), opEcho, &textMsg{Text: "again"}, nil))
}

func (s *RPCSuite) TestNestedCallback() {
	p := s.dial()
	defer p.Close()

	var resp textMsg
	s.Require().NoError(p.Call(context.Background(), opNested, &textMsg{Text: "x"}, &resp))
	s.Equal("nested:pong:x", resp.Text)
}

func (s *RPCSuite) TestErrorCrossesWire() {
	p := s.dial()
	defer p.Close()

	err := p.Call(context.Background(), opFail, &textMsg{Text: "alice"}, nil)
	s.Require().Error(err)
	s.True(errors.Is(err, merr.ErrDuplicateUsername))
	s.Equal("Username 'alice' is already in use", err.Error())
}

func (s *RPCSuite) TestUnknownOp() {
	p := s.dial()
	defer p.Close()
	s.ErrorIs(p.Call(context.Background(), opUnknown, nil, nil), merr.ErrServiceUnimplemented)
}

func (s *RPCSuite) TestCallTimeout() {
	p := s.dial(WithCallTimeout(50 * time.Millisecond))
	defer p.Close()

	err := p.Call(context.Background(), opSlow, &textMsg{}, nil)
	s.ErrorIs(err, merr.ErrCallTimeout)
	s.True(merr.IsRetryableErr(err))
}

func (s *RPCSuite) TestCallCanceled() {
	p := s.dial(WithCallTimeout(0))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.ErrorIs(p.Call(ctx, opSlow, &textMsg{}, nil), context.DeadlineExceeded)
}

func (s *RPCSuite) TestServerSideClose() {
	p := s.dial()
	serverPeer := <-s.opened

	s.Require().NoError(serverPeer.Close())
	<-s.closed
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		s.FailNow("client did not observe close")
	}
	s.ErrorIs(p.Call(context.Background(), opEcho, &textMsg{}, nil), merr.ErrServiceUnavailable)
}

func (s *RPCSuite) TestCallAfterClose() {
	p := s.dial()
	s.Require().NoError(p.Close())
	s.ErrorIs(p.Call(context.Background(), opEcho, &textMsg{}, nil), merr.ErrServiceUnavailable)
}

func TestRPC(t *testing.T) {
	suite.Run(t, new(RPCSuite))
}

func TestPeerContext(t *testing.T) {
	_, ok := PeerFromContext(context.Background())
	assert.False(t, ok)

	p := &Peer{}
	got, ok := PeerFromContext(WithPeer(context.Background(), p))
	require.True(t, ok)
	assert.Same(t, p, got)
}
