// Package protocol 定义聊天服务端与客户端之间的协议号、消息体以及约定的常量。
package protocol

import (
	"strconv"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

const (
	// DefaultPort 为服务端默认监听端口。
	DefaultPort = 1099
	// ServiceName 为服务端对外暴露的服务名。
	ServiceName = "Chat"
	// EndpointPrefix 为客户端回调端点名的前缀。
	EndpointPrefix = "ClientListenService_"
)

// Version 为当前协议版本，主版本号不同的两端不能互通。
const Version = "1.0.0"

var localVersion = semver.MustParse(Version)

// 客户端 -> 服务端。
const (
	OpRegister uint32 = iota + 1
	OpJoin
	OpLeave
	OpUpdateChat
	OpSendPM
	OpRoster
)

// 服务端 -> 客户端。
const (
	OpDeliver uint32 = iota + 101
	OpUpdateRoster
)

var opNames = map[uint32]string{
	OpRegister:     "register",
	OpJoin:         "join",
	OpLeave:        "leaveChat",
	OpUpdateChat:   "updateChat",
	OpSendPM:       "sendPM",
	OpRoster:       "roster",
	OpDeliver:      "deliver",
	OpUpdateRoster: "updateRoster",
}

// OpName 返回协议号的可读名称，未知协议号返回其十进制表示。
func OpName(op uint32) string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return strconv.FormatUint(uint64(op), 10)
}

// EndpointName 返回用户名对应的回调端点名。
func EndpointName(username string) string {
	return EndpointPrefix + strings.TrimSpace(username)
}

// CheckVersion 校验对端协议版本与本地是否兼容（主版本号一致）。
func CheckVersion(remote string) error {
	v, err := semver.ParseTolerant(remote)
	if err != nil {
		return merr.WrapErrIncompatibleVersion(remote, Version)
	}
	if v.Major != localVersion.Major {
		return merr.WrapErrIncompatibleVersion(remote, Version)
	}
	return nil
}
