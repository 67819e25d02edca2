package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
)

// PumpOptions 描述读循环的参数。
type PumpOptions struct {
	// ReadTimeout 为单次读取的超时时间，0 表示不设置 deadline。
	ReadTimeout time.Duration
	// QueueSize 为请求帧队列容量，<= 0 时使用 DefaultInboundQueueSize。
	QueueSize int
	// OnTimeout 在读超时时被调用；返回非 nil 时结束会话，为 nil 时超时即结束会话。
	OnTimeout func(sess Session) error
}

// DefaultInboundQueueSize 为每个会话默认的请求帧队列容量。
const DefaultInboundQueueSize = 1024

// inboundFrame 表示一条已解码但尚未交由业务处理的请求帧。
type inboundFrame struct {
	header  *framer.MessageHeader
	payload []byte
}

// Pump 驱动一条连接的读循环，直到连接关闭或出现错误。
//
// 流程：
//  1. 读协程（当前 goroutine）循环读取并解码帧；
//  2. 响应帧直接在读协程中回调 Handler.OnMessage，使等待响应的调用方尽快返回；
//  3. 请求帧投递到会话级队列，由独立的处理协程按顺序回调 Handler.OnMessage。
//
// 请求处理期间可以同步调用回同一个对端并等待响应，不会阻塞读协程。
// 返回前会关闭会话并等待处理协程退出；返回值为断开原因，对端正常关闭时为 nil。
func Pump(sess Session, conn net.Conn, c codec.Codec, h Handler, opts PumpOptions) error {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultInboundQueueSize
	}
	ctx := sess.Context()

	// per-session 请求队列：读协程负责投递，处理协程顺序消费。
	frames := make(chan inboundFrame, opts.QueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := range frames {
			h.OnMessage(sess, frame.header, frame.payload)
		}
	}()

	cause := readLoop(sess, conn, c, h, opts, frames)

	// 关闭会话会取消 ctx，使处理协程中等待对端响应的调用尽快失败。
	_ = sess.Close()
	close(frames)
	wg.Wait()

	if cause == nil && ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
		cause = ctx.Err()
	}
	return cause
}

// readLoop 持续从连接中读取并解码消息帧。
//
// 返回值：
//   - 非 nil error 表示读/解码过程中发生的错误（包括 OnTimeout 返回的错误）；
//   - nil 表示正常结束（例如对端关闭连接或会话被主动关闭）。
func readLoop(sess Session, conn net.Conn, c codec.Codec, h Handler, opts PumpOptions, frames chan<- inboundFrame) error {
	ctx := sess.Context()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		}

		header, payload, err := c.DecodeRaw(conn)
		if err != nil {
			// EOF/连接关闭视为正常断开。
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			// 超时错误交由 OnTimeout 决定是否结束会话。
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if opts.OnTimeout == nil {
					return err
				}
				if terr := opts.OnTimeout(sess); terr != nil {
					return terr
				}
				continue
			}

			stage := network.StageDecode
			if errors.Is(err, io.ErrUnexpectedEOF) {
				stage = network.StageRecvRaw
			}
			h.OnError(sess, stage, err)
			return err
		}

		if header.IsResponse() {
			h.OnMessage(sess, header, payload)
			continue
		}

		select {
		case frames <- inboundFrame{header: header, payload: payload}:
		case <-ctx.Done():
			return nil
		}
	}
}
