package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lk2023060901/danmu-chat-go/internal/network/compressor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/crypto"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/serializer"
)

// Codec 抽象了“从业务对象到网络帧，以及从网络帧回到业务对象”的完整编解码流程。
//
// Pipeline（写出 Encode）：
//
//	msg --> serializer --> [compress?] --> [encrypt?] --> Envelope{Header+Payload} --> framer.WriteFrame
//
// Pipeline（读入 Decode）：
//
//	framer.ReadFrame --> Envelope{Header+Payload} --> [decrypt?] --> [decompress?] --> serializer --> msg
type Codec interface {
	// Encode 将业务对象编码并写入到底层流。
	//
	//   - header：由调用方构造的报文头，不能为 nil；压缩/加密相关的 flags 由 Codec 维护。
	//   - msg   ：待编码的业务对象；为 nil 时写出空 payload。
	Encode(w io.Writer, header *framer.MessageHeader, msg any) error

	// Decode 从底层流中读取一帧报文，并解码到 msg 中。
	//
	// msg 为 nil 或 payload 为空时仅返回 Header。
	Decode(r io.Reader, msg any) (*framer.MessageHeader, error)

	// DecodeRaw 从底层流中读取一帧报文，返回消息头和已完成解密/解压的业务字节。
	DecodeRaw(r io.Reader) (*framer.MessageHeader, []byte, error)

	// Unmarshal 使用 Codec 内部的 serializer 将 DecodeRaw 得到的字节解码到 v。
	Unmarshal(data []byte, v any) error
}

// DefaultCompressThreshold 为默认的压缩阈值：payload 不小于该长度才压缩。
const DefaultCompressThreshold = 256

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer
	Serializer serializer.Serializer

	// Compressor 为 nil 时不压缩。
	Compressor compressor.Compressor
	// CompressThreshold 为 0 时使用 DefaultCompressThreshold。
	CompressThreshold int

	// Encryptor 为 nil 时不加密。
	Encryptor crypto.Encryptor
}

type codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor
	encryptor  crypto.Encryptor

	threshold int
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定依赖的 Codec。
func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, fmt.Errorf("codec: framer is nil")
	}
	if opts.Serializer == nil {
		return nil, fmt.Errorf("codec: serializer is nil")
	}

	c := &codec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
		compressor: opts.Compressor,
		encryptor:  opts.Encryptor,
		threshold:  opts.CompressThreshold,
	}
	if c.threshold <= 0 {
		c.threshold = DefaultCompressThreshold
	}
	return c, nil
}

// NewDefault 创建一个使用长度前缀帧与 JSON 序列化、不压缩不加密的 Codec。
func NewDefault() Codec {
	c, _ := New(Options{
		Framer:     framer.NewLengthPrefixedFramer(0),
		Serializer: serializer.JSONSerializer{},
	})
	return c
}

// Encode 实现 Codec.Encode。
func (c *codec) Encode(w io.Writer, header *framer.MessageHeader, msg any) error {
	if w == nil {
		return fmt.Errorf("codec: writer is nil")
	}
	if header == nil {
		return fmt.Errorf("codec: header is nil")
	}

	// 第一步：业务对象序列化。
	var body []byte
	if msg != nil {
		var err error
		body, err = c.serializer.Marshal(msg)
		if err != nil {
			return fmt.Errorf("codec: marshal failed: %w", err)
		}
	}

	// 在设置新 flags 之前，先清理压缩/加密相关位，避免复用 header 时遗留旧状态。
	header.Flags &^= framer.FlagCompressed | framer.FlagEncrypted

	// 第二步：可选压缩，仅在达到阈值时执行，flag 只在真正压缩时设置。
	if c.compressor != nil && len(body) >= c.threshold {
		compressed, err := c.compressor.Compress(nil, body)
		if err != nil {
			return fmt.Errorf("codec: compress failed: %w", err)
		}
		body = compressed
		header.Flags |= framer.FlagCompressed
	}

	// 第三步：可选加密。flags 需在计算 AAD 之前确定。
	if c.encryptor != nil && len(body) > 0 {
		header.Flags |= framer.FlagEncrypted
		packet, err := c.encryptor.Encrypt(body, buildAAD(header))
		if err != nil {
			return fmt.Errorf("codec: encrypt failed: %w", err)
		}
		body = packet
	}

	env := &framer.Envelope{
		Header:  header,
		Payload: body,
	}
	if err := c.framer.WriteFrame(w, env); err != nil {
		return fmt.Errorf("codec: write frame failed: %w", err)
	}
	return nil
}

// DecodeRaw 实现 Codec.DecodeRaw。
func (c *codec) DecodeRaw(r io.Reader) (*framer.MessageHeader, []byte, error) {
	if r == nil {
		return nil, nil, fmt.Errorf("codec: reader is nil")
	}

	env, err := c.framer.ReadFrame(r)
	if err != nil {
		return nil, nil, fmt.Errorf("codec: read frame failed: %w", err)
	}

	header := env.Header
	data := env.Payload

	// 第一阶段：解密。
	if header.Flags&framer.FlagEncrypted != 0 {
		if c.encryptor == nil {
			return nil, nil, fmt.Errorf("codec: encrypted payload but encryption disabled")
		}
		plain, err := c.encryptor.Decrypt(data, buildAAD(header))
		if err != nil {
			return nil, nil, fmt.Errorf("codec: decrypt failed: %w", err)
		}
		data = plain
	}

	// 第二阶段：解压。
	if header.Flags&framer.FlagCompressed != 0 {
		if c.compressor == nil {
			return nil, nil, fmt.Errorf("codec: compressed payload but compression disabled")
		}
		plain, err := c.compressor.Decompress(nil, data)
		if err != nil {
			return nil, nil, fmt.Errorf("codec: decompress failed: %w", err)
		}
		data = plain
	}

	return header, data, nil
}

// Decode 实现 Codec.Decode。
func (c *codec) Decode(r io.Reader, msg any) (*framer.MessageHeader, error) {
	header, data, err := c.DecodeRaw(r)
	if err != nil {
		return nil, err
	}
	if err := c.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return header, nil
}

// Unmarshal 实现 Codec.Unmarshal。
func (c *codec) Unmarshal(data []byte, v any) error {
	if v == nil || len(data) == 0 {
		return nil
	}
	if err := c.serializer.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal failed: %w", err)
	}
	return nil
}

// buildAAD 将 MessageHeader 中与完整性相关的字段编码为 AAD。
//
// AAD 字段顺序为：op(uint32) | seq(uint64) | flags(uint64) | timestamp(int64)
//
// 不包含 size 字段，size 依赖于加密后的 payload 长度。
func buildAAD(h *framer.MessageHeader) []byte {
	var buf [28]byte

	binary.BigEndian.PutUint32(buf[0:4], h.Op)
	binary.BigEndian.PutUint64(buf[4:12], h.Seq)
	binary.BigEndian.PutUint64(buf[12:20], h.Flags)
	binary.BigEndian.PutUint64(buf[20:28], uint64(h.Timestamp))

	return buf[:]
}
