package compressor

import "fmt"

// Compressor 抽象了“单次压缩/解压”能力。
//
// 面向网络消息压缩，不做全局单例，调用方按需创建具体实现的实例。
type Compressor interface {
	// Compress 将 src 压缩后追加到 dst[:0]。
	//
	// dst 一般可以传入一个可复用的缓冲区（长度可为 0），实现可选择复用其底层容量。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将压缩数据 src 解压后追加到 dst[:0]。
	//
	// src 必须是 Compress 的输出。
	Decompress(dst, src []byte) (plain []byte, err error)
}

// 支持的压缩算法名称，用于配置项。
const (
	NameNone = "none"
	NameZstd = "zstd"
)

// New 根据名称创建压缩器。名称为空或 "none" 时返回 nil, nil，表示不启用压缩。
func New(name string) (Compressor, error) {
	switch name {
	case "", NameNone:
		return nil, nil
	case NameZstd:
		c, err := NewZstdCompressor()
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("compressor: unknown algorithm %q", name)
	}
}

// NopCompressor 是一个空实现：不做任何压缩/解压，直接返回输入内容。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

// 编译期断言：确保 NopCompressor 实现了 Compressor 接口。
var _ Compressor = NopCompressor{}
