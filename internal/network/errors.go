package network

import "errors"

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在回调中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageAccept   Stage = "accept"   // 接受新连接
	StageRecvRaw  Stage = "recv_raw" // 读取底层连接字节
	StageDecode   Stage = "decode"   // 原始字节 -> Envelope
	StageDispatch Stage = "dispatch" // Envelope -> 业务处理
	StageEncode   Stage = "encode"   // 业务对象 -> Envelope/字节
	StageSend     Stage = "send"     // 底层发送完成
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串，真正的 error 对象在下面通过 errors.New 构造。
const (
	ErrCodeRecvFailed      = "network:recv_failed"
	ErrCodeDecodeFailed    = "network:decode_failed"
	ErrCodeDispatchFailed  = "network:dispatch_failed"
	ErrCodeEncodeFailed    = "network:encode_failed"
	ErrCodeSendFailed      = "network:send_failed"
	ErrCodeSessionClosed   = "network:session_closed"
	ErrCodeFrameTooLarge   = "network:frame_too_large"
	ErrCodeSendQueueFull   = "network:send_queue_full"
	ErrCodeMalformedHeader = "network:malformed_header"
)

var (
	// ErrRecvFailed 表示在读取底层连接数据时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrDecodeFailed 表示在将原始字节解码为 Envelope 时发生错误。
	ErrDecodeFailed = errors.New(ErrCodeDecodeFailed)

	// ErrDispatchFailed 表示在将 Envelope 分发给业务处理时发生错误。
	ErrDispatchFailed = errors.New(ErrCodeDispatchFailed)

	// ErrEncodeFailed 表示在将业务对象编码为 Envelope 或字节时发生错误。
	ErrEncodeFailed = errors.New(ErrCodeEncodeFailed)

	// ErrSendFailed 表示在发送数据到对端时发生错误。
	ErrSendFailed = errors.New(ErrCodeSendFailed)

	// ErrSessionClosed 表示会话已经关闭，无法继续收发。
	ErrSessionClosed = errors.New(ErrCodeSessionClosed)

	// ErrFrameTooLarge 表示帧长度超过上限。
	ErrFrameTooLarge = errors.New(ErrCodeFrameTooLarge)

	// ErrSendQueueFull 表示会话发送队列已满。
	ErrSendQueueFull = errors.New(ErrCodeSendQueueFull)

	// ErrMalformedHeader 表示 Envelope 或 MessageHeader 的编码不合法。
	ErrMalformedHeader = errors.New(ErrCodeMalformedHeader)
)
