package rpc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/router"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

const tracerName = "danmu-chat/rpc"

// DefaultCallTimeout 为 Call 的默认超时时间。
const DefaultCallTimeout = 3 * time.Second

// Option 用于定制 Peer。
type Option func(*Peer)

// WithRouter 设置处理对端请求的 Router，未设置时所有请求都返回 ErrServiceUnimplemented。
func WithRouter(r router.Router) Option {
	return func(p *Peer) {
		p.router = r
	}
}

// WithCallTimeout 设置每次 Call 的超时时间，<= 0 表示只受 ctx 约束。
func WithCallTimeout(d time.Duration) Option {
	return func(p *Peer) {
		p.timeout = d
	}
}

// WithOpNamer 设置协议号到可读名称的映射，用于日志与指标。
func WithOpNamer(fn func(op uint32) string) Option {
	return func(p *Peer) {
		if fn != nil {
			p.opName = fn
		}
	}
}

type reply struct {
	header  *framer.MessageHeader
	payload []byte
}

// Peer 是一条会话之上的双向请求/响应通道。
//
// 任一端都可以通过 Call 向对端发起请求并等待响应；对端的请求经由 Router 处理后自动回复。
// 请求与响应通过 header.Seq 关联，响应帧带有 framer.FlagResponse。
type Peer struct {
	sess    session.Session
	codec   codec.Codec
	router  router.Router
	timeout time.Duration
	opName  func(op uint32) string

	seq atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan reply
	closed  bool
}

// NewPeer 基于已建立的会话创建 Peer。
func NewPeer(sess session.Session, c codec.Codec, opts ...Option) *Peer {
	p := &Peer{
		sess:    sess,
		codec:   c,
		timeout: DefaultCallTimeout,
		opName:  func(op uint32) string { return strconv.FormatUint(uint64(op), 10) },
		pending: make(map[uint64]chan reply),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session 返回 Peer 所在的会话。
func (p *Peer) Session() session.Session {
	return p.sess
}

// Done 在底层会话关闭后被关闭。
func (p *Peer) Done() <-chan struct{} {
	return p.sess.Context().Done()
}

// Call 向对端发起一次请求并等待响应。
//
// 可能的错误：
//   - 对端返回的业务错误，经 merr.Error 还原，errors.Is 可直接匹配 merr 中的哨兵错误；
//   - merr.ErrCallTimeout：超过调用超时仍未收到响应；
//   - merr.ErrServiceUnavailable：会话已关闭或发送失败，对端不可达；
//   - ctx.Err()：调用方取消。
func (p *Peer) Call(ctx context.Context, op uint32, req, resp any) error {
	name := p.opName(op)
	seq := p.seq.Inc()
	ch := make(chan reply, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return merr.WrapErrServiceUnavailable("peer closed", name)
	}
	p.pending[seq] = ch
	p.mu.Unlock()
	defer p.forget(seq)

	if err := p.sess.Send(&framer.MessageHeader{Op: op, Seq: seq}, req); err != nil {
		return merr.WrapErrServiceUnavailable(err.Error(), name)
	}

	var timeoutC <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case r := <-ch:
		if r.header.Code != 0 {
			return merr.Error(&merr.Status{Code: r.header.Code, Msg: r.header.Reason})
		}
		if resp != nil {
			if err := p.codec.Unmarshal(r.payload, resp); err != nil {
				return merr.WrapErrServiceInternal(err.Error(), name)
			}
		}
		return nil
	case <-timeoutC:
		return merr.WrapErrCallTimeout(name, p.timeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-p.sess.Context().Done():
		return merr.WrapErrServiceUnavailable("connection closed", name)
	}
}

func (p *Peer) forget(seq uint64) {
	p.mu.Lock()
	delete(p.pending, seq)
	p.mu.Unlock()
}

// HandleFrame 处理会话上收到的一帧：响应帧唤醒对应的 Call，请求帧交给 Router 并回复。
func (p *Peer) HandleFrame(header *framer.MessageHeader, payload []byte) {
	if header.IsResponse() {
		p.mu.Lock()
		ch, ok := p.pending[header.Seq]
		delete(p.pending, header.Seq)
		p.mu.Unlock()
		if !ok {
			log.Debug("drop response without pending call",
				log.FieldSessionID(p.sess.ID()),
				log.FieldOp(p.opName(header.Op)),
				log.FieldSeq(header.Seq))
			return
		}
		ch <- reply{header: header, payload: payload}
		return
	}
	p.serve(header, payload)
}

func (p *Peer) serve(header *framer.MessageHeader, payload []byte) {
	name := p.opName(header.Op)

	ctx, span := otel.Tracer(tracerName).Start(p.sess.Context(), name, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	traceID := span.SpanContext().TraceID().String()
	if !span.SpanContext().HasTraceID() {
		traceID = uuid.NewString()
	}
	ctx = log.WithFields(ctx,
		zap.String("traceID", traceID),
		log.FieldOp(name),
		log.FieldSeq(header.Seq),
		log.FieldSessionID(p.sess.ID()))
	ctx = WithPeer(ctx, p)

	var (
		resp any
		err  error
	)
	if p.router == nil {
		err = merr.WrapErrServiceUnimplemented(name)
	} else {
		resp, err = p.router.Dispatch(ctx, header.Op, payload)
	}

	status := merr.StatusOf(err)
	metrics.RPCRequestsTotal.WithLabelValues(name, strconv.Itoa(int(status.Code))).Inc()

	out := &framer.MessageHeader{
		Op:    header.Op,
		Seq:   header.Seq,
		Flags: framer.FlagResponse,
	}
	if err != nil {
		resp = nil
		out.Code = status.Code
		out.Reason = status.Msg
		if merr.GetErrorType(err) == merr.InputError {
			log.Ctx(ctx).Debug("request rejected", zap.Error(err))
		} else {
			log.Ctx(ctx).Warn("request failed", zap.Error(err))
		}
	}

	if serr := p.sess.Send(out, resp); serr != nil {
		log.Ctx(ctx).Debug("failed to send response", zap.Error(serr))
	}
}

// Close 关闭 Peer 以及底层会话，等待中的 Call 立即以 ErrServiceUnavailable 返回。
func (p *Peer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.sess.Close()
}

// String 用于日志输出。
func (p *Peer) String() string {
	return fmt.Sprintf("peer(%s, %s)", p.sess.ID(), p.sess.RemoteAddr())
}
