// Package chatfmt 负责格式化聊天文本并校验用户输入。
package chatfmt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"
)

// Kind 决定 Format 使用的文本格式。
type Kind int

const (
	KindChat Kind = iota
	KindServer
	KindPrivate
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindServer:
		return "server"
	case KindPrivate:
		return "private"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const timeLayout = "15:04:05"

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	// 保留制表符、换行与回车。
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// Formatter 按其时钟的当前时间生成带时间戳的聊天文本。
type Formatter struct {
	clock clockwork.Clock
}

// New 创建从 clock 读取时间的 Formatter，clock 为 nil 时使用系统时钟。
func New(clock clockwork.Clock) *Formatter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Formatter{clock: clock}
}

func (f *Formatter) stamp() string {
	return f.clock.Now().Format(timeLayout)
}

// Chat 生成 "[HH:mm:ss] sender : body\n"。
func (f *Formatter) Chat(sender, body string) string {
	return fmt.Sprintf("[%s] %s : %s\n", f.stamp(), sender, body)
}

// Server 生成 "[HH:mm:ss] [Server] : body\n"。
func (f *Formatter) Server(body string) string {
	return fmt.Sprintf("[%s] [Server] : %s\n", f.stamp(), body)
}

// Private 生成 "[HH:mm:ss] [PM from sender] : body\n"。
func (f *Formatter) Private(sender, body string) string {
	return fmt.Sprintf("[%s] [PM from %s] : %s\n", f.stamp(), sender, body)
}

// Format 按 kind 选择格式，KindServer 忽略 sender。
func (f *Formatter) Format(kind Kind, sender, body string) string {
	switch kind {
	case KindServer:
		return f.Server(body)
	case KindPrivate:
		return f.Private(sender, body)
	default:
		return f.Chat(sender, body)
	}
}

// ValidUsername 判断 name 去除首尾空白后是否为 3 到 20 个字母、数字、下划线或连字符。
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(strings.TrimSpace(name))
}

// Sanitize 去除制表符、换行与回车以外的控制字符，再去除首尾空白。
func Sanitize(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}
