// Package interfaces 定义公共接口
//
// 本文件定义 PubSub 接口、消息结构以及可插拔的路由策略。
package interfaces

import (
	"context"

	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// PubSub 发布订阅服务
type PubSub interface {
	// Start 启动服务，重复调用无副作用
	Start(ctx context.Context) error

	// Stop 停止服务，清空订阅和主题处理器，重复调用无副作用
	Stop(ctx context.Context) error

	// Subscribe 订阅主题，handlers 追加到该主题的消息处理器
	Subscribe(topic string, handlers ...MessageHandler) error

	// Unsubscribe 取消订阅，并移除该主题的所有处理器
	Unsubscribe(topic string) error

	// Publish 发布消息
	Publish(ctx context.Context, topic string, data []byte) error

	// GetTopics 返回本地订阅的主题
	GetTopics() ([]string, error)

	// GetSubscribers 返回订阅了 topic 的远端节点
	GetSubscribers(topic string) ([]types.PeerID, error)

	// Peers 返回当前有流的远端节点
	Peers() []types.PeerID

	// Validate 按签名策略和主题验证器校验消息
	Validate(ctx context.Context, msg *Message) error

	// MsgID 计算消息 ID
	MsgID(msg *Message) []byte

	// AddTopicHandler 追加主题处理器，返回取消函数
	AddTopicHandler(topic string, handler MessageHandler) (cancel func())

	// OnSubscriptionChange 监听远端订阅变更，返回取消函数
	OnSubscriptionChange(handler SubscriptionChangeHandler) (cancel func())

	// RegisterTopicValidator 注册主题验证器
	RegisterTopicValidator(topic string, validator TopicValidator)

	// UnregisterTopicValidator 注销主题验证器
	UnregisterTopicValidator(topic string)
}

// Message 一条 pubsub 消息
//
// From/Seqno/Signature/Key 是否存在由签名策略决定。
// 消息只在一次处理过程中有效，处理器不应修改它。
type Message struct {
	// From 作者节点 ID，StrictNoSign 下为空
	From types.PeerID

	// FromPresent 线上消息是否带 from 字段，空值也算存在
	FromPresent bool

	// Data 消息数据
	Data []byte

	// Topic 主题
	Topic string

	// Seqno 序列号（8 字节）
	Seqno []byte

	// Signature 签名
	Signature []byte

	// Key 序列化的作者公钥，公钥可内联到 From 时为空
	Key []byte

	// ReceivedFrom 从哪个节点收到，本地发布时为自身
	ReceivedFrom types.PeerID
}

// MessageHandler 主题消息处理器
type MessageHandler func(msg *Message)

// SubscriptionChangeHandler 远端订阅变更处理器
//
// 每个 RPC 触发一次，subs 为该 RPC 中的全部变更，顺序与线上一致。
type SubscriptionChangeHandler func(peer types.PeerID, subs []types.SubOpt)

// TopicValidator 主题验证器，返回非 nil 错误即拒绝消息
type TopicValidator func(ctx context.Context, topic string, msg *Message) error

// ============================================================================
//                              路由策略
// ============================================================================

// Router 可插拔的转发策略（flood、mesh gossip 等）
//
// 核心层在本地投递之后调用 Forward，由策略决定发给哪些节点。
type Router interface {
	// Forward 转发一条已通过验证的消息
	Forward(ctx context.Context, msg *Message, view RouteView) error
}

// RouteView 路由策略可见的核心层状态
type RouteView interface {
	// Self 本地节点 ID
	Self() types.PeerID

	// Subscriptions 本地订阅的主题
	Subscriptions() []string

	// Peers 当前有流的远端节点
	Peers() []types.PeerID

	// Subscribers 订阅了 topic 的远端节点
	Subscribers(topic string) []types.PeerID

	// Send 把消息写入 peer 的出站队列，没有可写流时静默跳过
	Send(peer types.PeerID, msg *Message)
}

// SeenFilter Router 可选实现的消息去重
//
// 核心层在验证前用 Seen 跳过已见消息，验证通过后用 MarkSeen 标记；
// MarkSeen 返回 false 表示消息已被并发标记，按重复丢弃。
type SeenFilter interface {
	Seen(msgID []byte) bool
	MarkSeen(msgID []byte) bool
}
