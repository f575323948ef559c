package dep2p

import (
	"errors"

	"github.com/dep2p/go-dep2p-pubsub/internal/core/host"
	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 网络错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNetworkClosed 网络已关闭
	ErrNetworkClosed = host.ErrNetworkClosed

	// ErrUnknownPeer 节点不在同一网络中
	ErrUnknownPeer = host.ErrUnknownHost

	// ErrSelfConnect 连接自身
	ErrSelfConnect = host.ErrSelfConnect

	// ────────────────────────────────────────────────────────────────────────
	// 发布订阅错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 发布订阅服务未启动
	ErrNotStarted = pubsub.ErrNotStarted

	// ErrInvalidTopic 主题为空
	ErrInvalidTopic = pubsub.ErrInvalidTopic

	// ErrConfiguration 配置错误类别
	ErrConfiguration = pubsub.ErrConfiguration

	// ErrValidation 消息验证失败类别
	ErrValidation = pubsub.ErrValidation

	// ErrMissingSignature 缺少签名
	ErrMissingSignature = pubsub.ErrMissingSignature

	// ErrInvalidSignature 签名无效
	ErrInvalidSignature = pubsub.ErrInvalidSignature

	// ErrRejected 主题验证器拒绝
	ErrRejected = pubsub.ErrRejected
)
