package client

import (
	"context"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-chat-go/internal/broker"
	"github.com/lk2023060901/danmu-chat-go/internal/config"
	"github.com/lk2023060901/danmu-chat-go/internal/network/rpc"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

const waitFor = 3 * time.Second

type recordingSink struct {
	mu        sync.Mutex
	lines     []string
	rosters   [][]string
	connected []bool
	errors    []string
}

func (r *recordingSink) AppendMessage(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *recordingSink) UpdateRoster(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters = append(r.rosters, names)
}

func (r *recordingSink) SetConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, connected)
}

func (r *recordingSink) ShowError(title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, title+": "+message)
}

func (r *recordingSink) hasLine(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (r *recordingSink) lastRoster() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rosters) == 0 {
		return ""
	}
	return strings.Join(r.rosters[len(r.rosters)-1], ",")
}

func (r *recordingSink) lastConnected() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.connected) == 0 {
		return false, false
	}
	return r.connected[len(r.connected)-1], true
}

func (r *recordingSink) errorsSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

type SessionSuite struct {
	suite.Suite

	ctx    context.Context
	cancel context.CancelFunc
	server *broker.Server
	served chan error
	cfg    config.ClientConfig
}

func (s *SessionSuite) SetupTest() {
	bcfg := config.Default().Broker
	bcfg.Listen = "127.0.0.1:0"
	bcfg.FanoutWorkers = 4
	bcfg.CallTimeout = 2 * time.Second

	srv, err := broker.NewServer(bcfg)
	s.Require().NoError(err)
	s.server = srv
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.served = make(chan error, 1)
	go func() { s.served <- srv.Serve(s.ctx) }()

	host, port, err := net.SplitHostPort(srv.Addr().String())
	s.Require().NoError(err)
	s.cfg = config.Default().Client
	s.cfg.Host = host
	s.cfg.Port, err = strconv.Atoi(port)
	s.Require().NoError(err)
	s.cfg.MaxMessageLen = 20
}

func (s *SessionSuite) TearDownTest() {
	s.cancel()
	select {
	case <-s.served:
	case <-time.After(waitFor):
		s.Fail("server did not stop")
	}
}

func (s *SessionSuite) newSession(name string, opts ...Option) (*Session, *recordingSink) {
	sink := &recordingSink{}
	sess, err := NewSession(s.cfg, name, sink, opts...)
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = sess.Close(ctx)
	})
	return sess, sink
}

func (s *SessionSuite) join(name string) (*Session, *recordingSink) {
	sess, sink := s.newSession(name)
	s.Require().NoError(sess.Connect(s.ctx))
	s.Equal(StateConnected, sess.State())
	return sess, sink
}

func (s *SessionSuite) eventually(cond func() bool, msg string) {
	s.Eventually(cond, waitFor, 10*time.Millisecond, msg)
}

func (s *SessionSuite) TestNewSessionValidatesName() {
	_, err := NewSession(s.cfg, "  ", &recordingSink{})
	s.ErrorIs(err, merr.ErrInvalidArgument)
	s.Equal("Please enter your name to start", err.Error())

	_, err = NewSession(s.cfg, "a b", &recordingSink{})
	s.ErrorIs(err, merr.ErrInvalidUsername)
}

func (s *SessionSuite) TestConnect() {
	alice, sink := s.join(" alice ")
	s.Equal("alice", alice.Username())

	s.eventually(func() bool { return sink.hasLine("[Server] : Successfully connected to chat server") }, "connected line")
	s.eventually(func() bool { return sink.hasLine("alice has joined the chat!") }, "join broadcast")
	s.eventually(func() bool { return sink.lastRoster() == "alice" }, "roster")
	connected, ok := sink.lastConnected()
	s.True(ok)
	s.True(connected)
	s.Equal(uint64(1), alice.Generation())
	s.Equal([]string{"alice"}, alice.Roster())

	err := alice.Connect(s.ctx)
	s.ErrorIs(err, merr.ErrInvalidArgument)
}

func (s *SessionSuite) TestDuplicateNameFails() {
	s.join("alice")

	dup, sink := s.newSession("ALICE")
	err := dup.Connect(s.ctx)
	s.ErrorIs(err, merr.ErrDuplicateUsername)
	s.Equal(StateFailed, dup.State())
	s.eventually(func() bool {
		errs := sink.errorsSeen()
		return len(errs) == 1 && errs[0] == "Join Error: Username 'ALICE' is already in use"
	}, "join error shown")
	s.Equal([]string{"alice"}, s.server.Registry().Names())
}

func (s *SessionSuite) TestSendValidation() {
	sess, _ := s.newSession("alice")
	s.ErrorIs(sess.Send(s.ctx, "hi"), merr.ErrNotConnected)
	_, err := sess.SendPrivate(s.ctx, []int{0}, "hi")
	s.ErrorIs(err, merr.ErrNotConnected)
	s.Require().NoError(sess.Connect(s.ctx))

	err = sess.Send(s.ctx, "   ")
	s.ErrorIs(err, merr.ErrInvalidArgument)
	s.Equal("Please enter a message", err.Error())

	err = sess.Send(s.ctx, strings.Repeat("x", 21))
	s.ErrorIs(err, merr.ErrInvalidArgument)
	s.Equal("Message must be 20 characters or less", err.Error())
	s.NoError(sess.Send(s.ctx, strings.Repeat("é", 20)))

	_, err = sess.SendPrivate(s.ctx, nil, "hi")
	s.ErrorIs(err, merr.ErrInvalidArgument)
	s.Equal("Please select at least one user for private message", err.Error())
}

func (s *SessionSuite) TestChatAndPrivateMessage() {
	alice, aliceSink := s.join("alice")
	_, bobSink := s.join("bob")
	_, carolSink := s.join("carol")
	s.eventually(func() bool { return aliceSink.lastRoster() == "alice,bob,carol" }, "roster")
	s.eventually(func() bool { return alice.Generation() == 3 }, "generation")

	s.Require().NoError(alice.Send(s.ctx, "hello all"))
	for _, sink := range []*recordingSink{aliceSink, bobSink, carolSink} {
		s.eventually(func() bool { return sink.hasLine("] alice : hello all") }, "broadcast")
	}

	delivered, err := alice.SendPrivate(s.ctx, []int{1}, "psst")
	s.Require().NoError(err)
	s.Equal(1, delivered)
	s.eventually(func() bool { return bobSink.hasLine("[PM from alice] : psst") }, "private message")
	s.Never(func() bool { return carolSink.hasLine("psst") }, 200*time.Millisecond, 20*time.Millisecond)

	names, err := alice.RefreshRoster(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"alice", "bob", "carol"}, names)
}

func (s *SessionSuite) TestDisconnect() {
	alice, aliceSink := s.join("alice")
	_, bobSink := s.join("bob")
	s.eventually(func() bool { return bobSink.lastRoster() == "alice,bob" }, "roster")

	s.Require().NoError(alice.Disconnect(s.ctx))
	s.Equal(StateDisconnected, alice.State())
	s.eventually(func() bool { return bobSink.hasLine("] alice : Has Left The Chat") }, "leave notice")
	s.eventually(func() bool { return bobSink.lastRoster() == "bob" }, "roster after leave")
	s.eventually(func() bool {
		connected, ok := aliceSink.lastConnected()
		return ok && !connected
	}, "disconnected")
	s.Empty(aliceSink.errorsSeen())
	s.ErrorIs(alice.Send(s.ctx, "still here?"), merr.ErrNotConnected)

	s.NoError(alice.Disconnect(s.ctx))
	s.Require().NoError(alice.Connect(s.ctx))
	s.eventually(func() bool { return bobSink.lastRoster() == "bob,alice" }, "rejoined")
}

func (s *SessionSuite) TestConnectionLost() {
	alice, sink := s.join("alice")
	s.Require().NoError(s.server.Close())

	s.eventually(func() bool { return alice.State() == StateDisconnected }, "state")
	s.eventually(func() bool {
		errs := sink.errorsSeen()
		return len(errs) == 1 && errs[0] == "Connection Error: Connection lost"
	}, "connection lost shown")
}

func (s *SessionSuite) TestRegistrationFailure() {
	closeAfterDial := func(next DialFunc) DialFunc {
		return func(ctx context.Context, addr string) (*rpc.Peer, error) {
			p, err := next(ctx, addr)
			if err == nil {
				_ = p.Close()
			}
			return p, err
		}
	}
	sess, sink := s.newSession("alice", WithDialHook(closeAfterDial))

	err := sess.Connect(s.ctx)
	s.ErrorIs(err, merr.ErrRegistrationFailure)
	s.Equal(StateFailed, sess.State())
	s.eventually(func() bool {
		errs := sink.errorsSeen()
		return len(errs) == 1 && strings.HasPrefix(errs[0], "Registration Error: Failed to register client: ")
	}, "registration error shown")
}

func (s *SessionSuite) refuseFirst(n int, calls *int) Option {
	return WithDialHook(func(next DialFunc) DialFunc {
		return func(ctx context.Context, addr string) (*rpc.Peer, error) {
			*calls++
			if n < 0 || *calls <= n {
				return nil, refused()
			}
			return next(ctx, addr)
		}
	})
}

func (s *SessionSuite) TestConnectAfterRefusals() {
	clock := clockwork.NewFakeClock()
	calls := 0
	sess, sink := s.newSession("alice", WithClock(clock), s.refuseFirst(2, &calls))

	future := sess.Start(s.ctx)
	advanceBackoffs(s.ctx, s.T(), clock, 2, s.cfg.RetryBackoff)
	_, err := future.Await()
	s.Require().NoError(err)
	s.Equal(3, calls)
	s.Equal(StateConnected, sess.State())
	s.eventually(func() bool { return sink.hasLine("Successfully connected to chat server") }, "connected")
}

func (s *SessionSuite) TestConnectFailsAfterMaxAttempts() {
	clock := clockwork.NewFakeClock()
	calls := 0
	sess, sink := s.newSession("alice", WithClock(clock), s.refuseFirst(-1, &calls))

	future := sess.Start(s.ctx)
	advanceBackoffs(s.ctx, s.T(), clock, 2, s.cfg.RetryBackoff)
	_, err := future.Await()
	s.ErrorIs(err, merr.ErrConnectFailure)
	s.Equal(3, calls)
	s.Equal(StateFailed, sess.State())
	s.eventually(func() bool {
		errs := sink.errorsSeen()
		return len(errs) == 1 && strings.HasPrefix(errs[0], "Connection Error: Failed to connect to server at ")
	}, "connection error shown")
}

func (s *SessionSuite) TestCancelDuringBackoff() {
	clock := clockwork.NewFakeClock()
	calls := 0
	sess, sink := s.newSession("alice", WithClock(clock), s.refuseFirst(-1, &calls))

	future := sess.Start(s.ctx)
	ctx, cancel := context.WithTimeout(s.ctx, waitFor)
	defer cancel()
	s.Require().NoError(clock.BlockUntilContext(ctx, 1))
	sess.Cancel()

	_, err := future.Await()
	s.ErrorIs(err, context.Canceled)
	s.Equal(StateDisconnected, sess.State())
	s.Equal(1, calls)
	s.Never(func() bool { return len(sink.errorsSeen()) > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}

func (s *SessionSuite) TestCancelAsSoonAsConnecting() {
	for i := 0; i < 20; i++ {
		sess, sink := s.newSession("alice", WithDialHook(func(DialFunc) DialFunc {
			return func(ctx context.Context, _ string) (*rpc.Peer, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}
		}))

		future := sess.Start(s.ctx)
		for sess.State() != StateConnecting {
			runtime.Gosched()
		}
		sess.Cancel()

		select {
		case <-future.Inner():
		case <-time.After(waitFor):
			s.FailNow("cancel issued while connecting was lost")
		}
		_, err := future.Await()
		s.ErrorIs(err, context.Canceled)
		s.Equal(StateDisconnected, sess.State())
		s.Empty(sink.errorsSeen())
	}
}

func TestSession(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}
