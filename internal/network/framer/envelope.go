package framer

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
)

// Header.Flags 的位定义。
const (
	// FlagResponse 标记该帧为对某个请求的响应，Seq 与请求一致。
	FlagResponse uint64 = 1 << 0
	// FlagCompressed 标记 Payload 已压缩。
	FlagCompressed uint64 = 1 << 1
	// FlagEncrypted 标记 Payload 已加密。
	FlagEncrypted uint64 = 1 << 2
)

// MessageHeader 为每一帧携带的报文头。
//
// 线上编码（protobuf wire format）：
//
//	1: op        varint
//	2: seq       varint
//	3: flags     varint
//	4: timestamp varint (毫秒)
//	5: size      varint
//	6: code      zigzag varint
//	7: reason    bytes
type MessageHeader struct {
	Op        uint32
	Seq       uint64
	Flags     uint64
	Timestamp int64
	Size      uint32
	// Code 与 Reason 仅出现在响应帧中，Code 为 0 表示成功。
	Code   int32
	Reason string
}

// IsResponse 判断该报文头是否属于响应帧。
func (h *MessageHeader) IsResponse() bool {
	return h != nil && h.Flags&FlagResponse != 0
}

// Envelope 为一帧的完整内容：报文头 + 业务字节。
//
//	1: header  bytes (MessageHeader)
//	2: payload bytes
type Envelope struct {
	Header  *MessageHeader
	Payload []byte
}

const (
	fieldOp protowire.Number = iota + 1
	fieldSeq
	fieldFlags
	fieldTimestamp
	fieldSize
	fieldCode
	fieldReason
)

const (
	fieldHeader protowire.Number = iota + 1
	fieldPayload
)

// AppendTo 将报文头编码后追加到 b。零值字段不写出。
func (h *MessageHeader) AppendTo(b []byte) []byte {
	if h == nil {
		return b
	}
	b = appendVarint(b, fieldOp, uint64(h.Op))
	b = appendVarint(b, fieldSeq, h.Seq)
	b = appendVarint(b, fieldFlags, h.Flags)
	b = appendVarint(b, fieldTimestamp, uint64(h.Timestamp))
	b = appendVarint(b, fieldSize, uint64(h.Size))
	b = appendVarint(b, fieldCode, protowire.EncodeZigZag(int64(h.Code)))
	if h.Reason != "" {
		b = protowire.AppendTag(b, fieldReason, protowire.BytesType)
		b = protowire.AppendString(b, h.Reason)
	}
	return b
}

// Unmarshal 从 b 解码报文头，未知字段会被跳过。
func (h *MessageHeader) Unmarshal(b []byte) error {
	*h = MessageHeader{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num >= fieldOp && num <= fieldCode:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
			b = b[m:]
			switch num {
			case fieldOp:
				h.Op = uint32(v)
			case fieldSeq:
				h.Seq = v
			case fieldFlags:
				h.Flags = v
			case fieldTimestamp:
				h.Timestamp = int64(v)
			case fieldSize:
				h.Size = uint32(v)
			case fieldCode:
				h.Code = int32(protowire.DecodeZigZag(v))
			}
		case typ == protowire.BytesType && num == fieldReason:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
			b = b[m:]
			h.Reason = v
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}

// AppendTo 将 Envelope 编码后追加到 b。
func (e *Envelope) AppendTo(b []byte) []byte {
	if e.Header != nil {
		b = protowire.AppendTag(b, fieldHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Header.AppendTo(nil))
	}
	if len(e.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Payload)
	}
	return b
}

// Unmarshal 从 b 解码 Envelope。
//
// Payload 会被复制一份，调用方可以安全地复用 b。
func (e *Envelope) Unmarshal(b []byte) error {
	e.Header = &MessageHeader{}
	e.Payload = nil
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType || (num != fieldHeader && num != fieldPayload) {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return malformed(protowire.ParseError(m))
			}
			b = b[m:]
			continue
		}

		v, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return malformed(protowire.ParseError(m))
		}
		b = b[m:]
		if num == fieldHeader {
			if err := e.Header.Unmarshal(v); err != nil {
				return err
			}
			continue
		}
		e.Payload = append([]byte(nil), v...)
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", network.ErrMalformedHeader, err)
}
