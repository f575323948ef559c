package pubsub

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ============================================================================
//                              错误分类
// ============================================================================

var (
	// ErrConfiguration 构造参数缺失或非法
	ErrConfiguration = errors.New("pubsub: configuration error")

	// ErrValidation 消息验证失败，只记录日志并丢弃，不会返回给发布者
	ErrValidation = errors.New("pubsub: validation failed")

	// ErrStream 单个节点的流错误
	ErrStream = errors.New("pubsub: stream error")
)

// 构造错误
var (
	// ErrNilRegistrar Registrar 为 nil
	ErrNilRegistrar = fmt.Errorf("%w: registrar is nil", ErrConfiguration)

	// ErrNilRouter Router 为 nil
	ErrNilRouter = fmt.Errorf("%w: router is nil", ErrConfiguration)

	// ErrNilPrivateKey 私钥为 nil
	ErrNilPrivateKey = fmt.Errorf("%w: private key is nil", ErrConfiguration)

	// ErrNoMulticodecs 未配置协议
	ErrNoMulticodecs = fmt.Errorf("%w: no multicodecs", ErrConfiguration)

	// ErrInvalidSignaturePolicy 签名策略非法
	ErrInvalidSignaturePolicy = fmt.Errorf("%w: %w", ErrConfiguration, types.ErrInvalidSignaturePolicy)
)

// 状态与主题错误
var (
	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("pubsub: not started")

	// ErrInvalidTopic 主题为空
	ErrInvalidTopic = errors.New("pubsub: invalid topic")
)

// 验证错误
var (
	// ErrMissingSignature StrictSign 下缺少签名
	ErrMissingSignature = fmt.Errorf("%w: missing signature", ErrValidation)

	// ErrMissingSeqno StrictSign 下缺少序列号
	ErrMissingSeqno = fmt.Errorf("%w: missing seqno", ErrValidation)

	// ErrInvalidSignature 签名校验失败
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrValidation)

	// ErrUnexpectedFrom StrictNoSign 下出现 from
	ErrUnexpectedFrom = fmt.Errorf("%w: unexpected from", ErrValidation)

	// ErrUnexpectedSignature StrictNoSign 下出现签名
	ErrUnexpectedSignature = fmt.Errorf("%w: unexpected signature", ErrValidation)

	// ErrUnexpectedKey StrictNoSign 下出现公钥
	ErrUnexpectedKey = fmt.Errorf("%w: unexpected key", ErrValidation)

	// ErrUnexpectedSeqno StrictNoSign 下出现序列号
	ErrUnexpectedSeqno = fmt.Errorf("%w: unexpected seqno", ErrValidation)

	// ErrUnhandledSignaturePolicy 未处理的签名策略
	ErrUnhandledSignaturePolicy = fmt.Errorf("%w: unhandled signature policy", ErrValidation)

	// ErrRejected 主题验证器拒绝
	ErrRejected = fmt.Errorf("%w: rejected by topic validator", ErrValidation)

	// ErrInvalidTopicIDs 消息不是恰好一个主题
	ErrInvalidTopicIDs = fmt.Errorf("%w: message must carry exactly one topic", ErrValidation)
)

// 流错误
var (
	// ErrNoWritableStream 没有可写的出站流
	ErrNoWritableStream = fmt.Errorf("%w: no writable stream", ErrStream)

	// ErrStreamsClosed PeerStreams 已关闭
	ErrStreamsClosed = fmt.Errorf("%w: peer streams closed", ErrStream)

	// ErrStreamAbandoned 入站流被替换或关闭
	ErrStreamAbandoned = fmt.Errorf("%w: inbound stream abandoned", ErrStream)

	// ErrFrameTooLarge 帧超过 MaxMessageSize
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrStream)

	// ErrQueueClosed 消息队列已关闭
	ErrQueueClosed = errors.New("pubsub: message queue closed")
)
