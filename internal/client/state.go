package client

import "fmt"

// State 表示 Session 的生命周期阶段。
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
	StateJoined
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateRegistered:
		return "Registered"
	case StateJoined:
		return "Joined"
	case StateConnected:
		return "Connected"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// acceptsCallbacks 判断服务端此时是否可能已经回调本端。
func (s State) acceptsCallbacks() bool {
	return s >= StateRegistered && s <= StateConnected
}
