package acceptor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/connector"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
)

type echo struct {
	Text string `json:"text"`
}

// echoHandler 将每个请求原样作为响应写回。
type echoHandler struct {
	c        codec.Codec
	mu       sync.Mutex
	accepted int
	closed   chan string
}

func (h *echoHandler) OnAccept(ctx context.Context, conn net.Conn, c codec.Codec) (session.Session, error) {
	h.mu.Lock()
	h.accepted++
	h.mu.Unlock()
	return session.NewBaseSession(ctx, conn, c, session.Options{}), nil
}

func (h *echoHandler) OnTimeout(session.Session) error { return nil }

func (h *echoHandler) OnMessage(sess session.Session, header *framer.MessageHeader, payload []byte) {
	var in echo
	_ = h.c.Unmarshal(payload, &in)
	_ = sess.Send(&framer.MessageHeader{Op: header.Op, Seq: header.Seq, Flags: framer.FlagResponse}, &in)
}

func (h *echoHandler) OnSessionClosed(sess session.Session, _ error) {
	h.closed <- sess.ID()
}

func (h *echoHandler) OnError(session.Session, network.Stage, error) {}

type clientHandler struct {
	c       codec.Codec
	replies chan string
	closed  chan error
}

func (h *clientHandler) OnMessage(_ session.Session, _ *framer.MessageHeader, payload []byte) {
	var out echo
	_ = h.c.Unmarshal(payload, &out)
	h.replies <- out.Text
}

func (h *clientHandler) OnSessionClosed(_ session.Session, err error) { h.closed <- err }

func (h *clientHandler) OnError(session.Session, network.Stage, error) {}

func TestServeAndDial(t *testing.T) {
	c := codec.NewDefault()
	a, err := NewTCPAcceptor("127.0.0.1:0", c, nil, Config{})
	require.NoError(t, err)

	sh := &echoHandler{c: c, closed: make(chan string, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx, sh) }()

	ch := &clientHandler{c: c, replies: make(chan string, 1), closed: make(chan error, 1)}
	sess, err := connector.NewTCPConnector(c, connector.Config{}).Dial(context.Background(), a.Addr().String(), ch)
	require.NoError(t, err)

	require.NoError(t, sess.Send(&framer.MessageHeader{Op: 4, Seq: 1}, &echo{Text: "ping"}))
	select {
	case got := <-ch.replies:
		assert.Equal(t, "ping", got)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
	assert.Eventually(t, func() bool { return a.Sessions().Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Close())
	select {
	case <-sh.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe close")
	}
	assert.Eventually(t, func() bool { return a.Sessions().Count() == 0 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-served, context.Canceled)
}

func TestCloseStopsServe(t *testing.T) {
	c := codec.NewDefault()
	a, err := NewTCPAcceptor("127.0.0.1:0", c, session.NewBaseSessionManager(), Config{})
	require.NoError(t, err)

	sh := &echoHandler{c: c, closed: make(chan string, 1)}
	served := make(chan error, 1)
	go func() { served <- a.Serve(context.Background(), sh) }()

	ch := &clientHandler{c: c, replies: make(chan string, 1), closed: make(chan error, 1)}
	_, err = connector.NewTCPConnector(c, connector.Config{}).Dial(context.Background(), a.Addr().String(), ch)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return a.Sessions().Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())
	assert.NoError(t, <-served)
	select {
	case <-ch.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not observe server shutdown")
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = connector.NewTCPConnector(codec.NewDefault(), connector.Config{}).Dial(context.Background(), addr, &clientHandler{})
	assert.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	_, err := NewBaseAcceptor(nil, codec.NewDefault(), nil, Config{})
	assert.Error(t, err)
	_, err = NewTCPAcceptor("", codec.NewDefault(), nil, Config{})
	assert.Error(t, err)
}
