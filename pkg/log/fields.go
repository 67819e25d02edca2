package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FieldNameModule     = "module"
	FieldNameComponent  = "component"
	FieldNameUsername   = "username"
	FieldNameOp         = "op"
	FieldNameSeq        = "seq"
	FieldNameGeneration = "generation"
	FieldNameSessionID  = "sessionID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldMessage 返回一个包含消息对象的 zap 字段。
func FieldMessage(msg zapcore.ObjectMarshaler) zap.Field {
	return zap.Object("message", msg)
}

// FieldUsername 返回一个包含用户名的 zap 字段。
func FieldUsername(username string) zap.Field {
	return zap.String(FieldNameUsername, username)
}

// FieldOp 返回一个包含协议操作名的 zap 字段。
func FieldOp(op string) zap.Field {
	return zap.String(FieldNameOp, op)
}

// FieldSeq 返回一个包含请求序号的 zap 字段。
func FieldSeq(seq uint64) zap.Field {
	return zap.Uint64(FieldNameSeq, seq)
}

// FieldGeneration 返回一个包含名单版本号的 zap 字段。
func FieldGeneration(gen uint64) zap.Field {
	return zap.Uint64(FieldNameGeneration, gen)
}

// FieldSessionID 返回一个包含会话 ID 的 zap 字段。
func FieldSessionID(id string) zap.Field {
	return zap.String(FieldNameSessionID, id)
}
