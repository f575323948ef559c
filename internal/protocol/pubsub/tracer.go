package pubsub

import (
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// Tracer 核心层事件追踪
//
// 回调在处理路径上同步执行，实现必须非阻塞。
type Tracer interface {
	// AddPeer 新建 PeerStreams
	AddPeer(peer types.PeerID, protocol string)

	// RemovePeer 移除 PeerStreams
	RemovePeer(peer types.PeerID)

	// ValidateMessage 消息进入验证
	ValidateMessage(msg *interfaces.Message)

	// DeliverMessage 消息通过验证
	DeliverMessage(msg *interfaces.Message)

	// RejectMessage 消息验证失败
	RejectMessage(msg *interfaces.Message, err error)

	// DropMessage 消息未进入验证即被丢弃
	DropMessage(msg *interfaces.Message, reason string)

	// InFlight 正在验证的消息数变化
	InFlight(n int64)
}

// 丢弃原因
const (
	DropReasonNotSubscribed = "not subscribed"
	DropReasonBadTopics     = "bad topics"
	DropReasonQueueClosed   = "queue closed"
	DropReasonDuplicate     = "duplicate"
)

// noopTracer 不做任何事
type noopTracer struct{}

func (noopTracer) AddPeer(types.PeerID, string)             {}
func (noopTracer) RemovePeer(types.PeerID)                  {}
func (noopTracer) ValidateMessage(*interfaces.Message)      {}
func (noopTracer) DeliverMessage(*interfaces.Message)       {}
func (noopTracer) RejectMessage(*interfaces.Message, error) {}
func (noopTracer) DropMessage(*interfaces.Message, string)  {}
func (noopTracer) InFlight(int64)                           {}
