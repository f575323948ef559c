package dep2p

import (
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateStarting 启动中
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止，不可重新启动
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

type (
	// PeerID 节点 ID
	PeerID = types.PeerID

	// SubOpt 订阅变更
	SubOpt = types.SubOpt

	// SignaturePolicy 签名策略
	SignaturePolicy = types.SignaturePolicy

	// Message pubsub 消息
	Message = interfaces.Message

	// MessageHandler 主题消息处理器
	MessageHandler = interfaces.MessageHandler

	// TopicValidator 主题验证器
	TopicValidator = interfaces.TopicValidator

	// SubscriptionChangeHandler 远端订阅变更处理器
	SubscriptionChangeHandler = interfaces.SubscriptionChangeHandler

	// Router 转发策略
	Router = interfaces.Router
)

// 签名策略
const (
	StrictSign   = types.StrictSign
	StrictNoSign = types.StrictNoSign
)
