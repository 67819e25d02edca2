package framer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
)

// Framer 抽象了基于 Envelope 的打包/解包能力。
//
// 约定：
//   - 一帧数据的格式为：4 字节大端无符号整型（表示后续 Envelope 编码后的长度）+ Envelope 二进制数据。
//   - Envelope 的编码见 envelope.go。
type Framer interface {
	// WriteFrame 将 Envelope 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, env *Envelope) error

	// ReadFrame 从 r 中读取一帧数据并解包为 Envelope。
	ReadFrame(r io.Reader) (*Envelope, error)
}

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界。
// 适用于基于流的连接（如 TCP）。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧大小（Envelope 编码后长度），单位字节。
	// 为 0 时使用默认值 DefaultMaxFrameSize。
	MaxFrameSize uint32
}

// DefaultMaxFrameSize 为默认的最大帧大小。
const DefaultMaxFrameSize uint32 = 16 * 1024 * 1024 // 16MB

const lengthPrefixSize = 4

var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器。
// maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 将 Envelope 编码为长度前缀帧并写入。
//
// 长度前缀与帧体在同一块缓冲区中拼好后一次性写出，避免并发写入时被其它帧打断。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, env *Envelope) error {
	if env == nil {
		return fmt.Errorf("framer: envelope is nil")
	}
	if env.Header == nil {
		env.Header = &MessageHeader{}
	}

	// 自动修正 size 字段，保证与 payload 长度一致。
	env.Header.Size = uint32(len(env.Payload))

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = append(buf.B[:0], 0, 0, 0, 0)
	buf.B = env.AppendTo(buf.B)

	length := uint32(len(buf.B) - lengthPrefixSize)
	if length > f.effectiveMaxSize() {
		return fmt.Errorf("framer: frame size %d exceeds max %d: %w", length, f.effectiveMaxSize(), network.ErrFrameTooLarge)
	}
	binary.BigEndian.PutUint32(buf.B[:lengthPrefixSize], length)

	if _, err := w.Write(buf.B); err != nil {
		return fmt.Errorf("framer: write frame failed: %w", err)
	}
	return nil
}

// ReadFrame 从流中读取一帧数据并解码为 Envelope。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) (*Envelope, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("framer: read header failed: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		return nil, fmt.Errorf("framer: frame size %d exceeds max %d: %w", length, f.effectiveMaxSize(), network.ErrFrameTooLarge)
	}

	env := &Envelope{Header: &MessageHeader{}}
	if length == 0 {
		// 空帧视为空 Envelope。
		return env, nil
	}

	// 使用 ByteBuffer 池降低频繁 make 带来的分配与 GC 压力。
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if cap(buf.B) < int(length) {
		buf.B = make([]byte, int(length))
	} else {
		buf.B = buf.B[:int(length)]
	}
	if _, err := io.ReadFull(r, buf.B); err != nil {
		return nil, fmt.Errorf("framer: read body failed: %w", err)
	}

	if err := env.Unmarshal(buf.B); err != nil {
		return nil, fmt.Errorf("framer: unmarshal envelope failed: %w", err)
	}
	return env, nil
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}
