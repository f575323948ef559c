package dep2p

import (
	"context"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
)

// ════════════════════════════════════════════════════════════════════════════
//                              发布订阅
// ════════════════════════════════════════════════════════════════════════════

// PubSub 返回发布订阅服务
func (n *Node) PubSub() interfaces.PubSub {
	return n.pubsub
}

// Subscribe 订阅主题
func (n *Node) Subscribe(topic string, handlers ...MessageHandler) error {
	return n.pubsub.Subscribe(topic, handlers...)
}

// Unsubscribe 取消订阅
func (n *Node) Unsubscribe(topic string) error {
	return n.pubsub.Unsubscribe(topic)
}

// Publish 发布消息
func (n *Node) Publish(ctx context.Context, topic string, data []byte) error {
	return n.pubsub.Publish(ctx, topic, data)
}

// Topics 返回本地订阅的主题
func (n *Node) Topics() ([]string, error) {
	return n.pubsub.GetTopics()
}

// Subscribers 返回订阅了 topic 的远端节点
func (n *Node) Subscribers(topic string) ([]PeerID, error) {
	return n.pubsub.GetSubscribers(topic)
}

// Peers 返回建立了 pubsub 流的远端节点
func (n *Node) Peers() []PeerID {
	return n.pubsub.Peers()
}

// AddTopicHandler 追加主题处理器，返回取消函数
func (n *Node) AddTopicHandler(topic string, handler MessageHandler) func() {
	return n.pubsub.AddTopicHandler(topic, handler)
}

// OnSubscriptionChange 监听远端订阅变更，返回取消函数
func (n *Node) OnSubscriptionChange(handler SubscriptionChangeHandler) func() {
	return n.pubsub.OnSubscriptionChange(handler)
}

// RegisterTopicValidator 注册主题验证器
func (n *Node) RegisterTopicValidator(topic string, validator TopicValidator) {
	n.pubsub.RegisterTopicValidator(topic, validator)
}

// UnregisterTopicValidator 注销主题验证器
func (n *Node) UnregisterTopicValidator(topic string) {
	n.pubsub.UnregisterTopicValidator(topic)
}
