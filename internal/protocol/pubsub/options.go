package pubsub

import (
	"fmt"
	"time"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// 默认值
const (
	DefaultMessageProcessingConcurrency = 10
	DefaultMessageQueueSize             = 256
	DefaultMaxMessageSize               = 4 << 20 // 4MB
	DefaultNewStreamTimeout             = 10 * time.Second
	DefaultPublicKeyCacheSize           = 1024
)

// Config PubSub 服务配置
type Config struct {
	// Multicodecs 协议 ID，按优先级排列（必填）
	Multicodecs []string

	// SignaturePolicy 全局签名策略
	SignaturePolicy types.SignaturePolicy

	// CanRelayMessage 是否处理未订阅主题的消息（用于中继）
	CanRelayMessage bool

	// EmitSelf 本地发布的消息是否投递给本地处理器
	EmitSelf bool

	// MessageProcessingConcurrency 同时验证的消息数上限
	MessageProcessingConcurrency int

	// MessageQueueSize 等待验证的消息积压上限，满时读循环阻塞
	MessageQueueSize int

	// MaxMessageSize 单帧最大字节数
	MaxMessageSize int

	// NewStreamTimeout 打开出站流的超时
	NewStreamTimeout time.Duration

	// PublicKeyCacheSize 签名验证公钥缓存大小
	PublicKeyCacheSize int

	// AcceptFrom 是否接受来自 peer 的 RPC，nil 表示全部接受
	AcceptFrom func(peer types.PeerID) bool

	// MsgIDFn 自定义消息 ID，nil 时按签名策略计算
	MsgIDFn func(msg *interfaces.Message) []byte

	// Codec RPC 编解码器，nil 时使用 protobuf 编码
	Codec RPCCodec

	// Tracer 事件追踪，nil 时不追踪
	Tracer Tracer
}

// DefaultConfig 返回默认配置
//
// Multicodecs 没有默认值，需要调用方指定。
func DefaultConfig() *Config {
	return &Config{
		SignaturePolicy:              types.StrictSign,
		MessageProcessingConcurrency: DefaultMessageProcessingConcurrency,
		MessageQueueSize:             DefaultMessageQueueSize,
		MaxMessageSize:               DefaultMaxMessageSize,
		NewStreamTimeout:             DefaultNewStreamTimeout,
		PublicKeyCacheSize:           DefaultPublicKeyCacheSize,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.Multicodecs) == 0 {
		return ErrNoMulticodecs
	}
	for _, proto := range c.Multicodecs {
		if proto == "" {
			return fmt.Errorf("%w: empty multicodec", ErrConfiguration)
		}
	}
	if !c.SignaturePolicy.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidSignaturePolicy, c.SignaturePolicy)
	}
	if c.MessageProcessingConcurrency <= 0 {
		return fmt.Errorf("%w: message processing concurrency must be positive", ErrConfiguration)
	}
	if c.MessageQueueSize < 0 {
		return fmt.Errorf("%w: message queue size must not be negative", ErrConfiguration)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrConfiguration)
	}
	if c.NewStreamTimeout <= 0 {
		return fmt.Errorf("%w: new stream timeout must be positive", ErrConfiguration)
	}
	if c.PublicKeyCacheSize <= 0 {
		return fmt.Errorf("%w: public key cache size must be positive", ErrConfiguration)
	}
	return nil
}

// Option 配置选项函数
type Option func(*Config)

// WithMulticodecs 设置协议 ID
func WithMulticodecs(protocols ...string) Option {
	return func(c *Config) {
		c.Multicodecs = append([]string(nil), protocols...)
	}
}

// WithSignaturePolicy 设置签名策略
func WithSignaturePolicy(policy types.SignaturePolicy) Option {
	return func(c *Config) {
		c.SignaturePolicy = policy
	}
}

// WithCanRelayMessage 设置是否处理未订阅主题的消息
func WithCanRelayMessage(enable bool) Option {
	return func(c *Config) {
		c.CanRelayMessage = enable
	}
}

// WithEmitSelf 设置是否投递自己发布的消息
func WithEmitSelf(enable bool) Option {
	return func(c *Config) {
		c.EmitSelf = enable
	}
}

// WithMessageProcessingConcurrency 设置验证并发度
func WithMessageProcessingConcurrency(n int) Option {
	return func(c *Config) {
		c.MessageProcessingConcurrency = n
	}
}

// WithMessageQueueSize 设置消息积压上限
func WithMessageQueueSize(n int) Option {
	return func(c *Config) {
		c.MessageQueueSize = n
	}
}

// WithMaxMessageSize 设置最大帧大小
func WithMaxMessageSize(size int) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithNewStreamTimeout 设置打开出站流的超时
func WithNewStreamTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.NewStreamTimeout = timeout
	}
}

// WithPublicKeyCacheSize 设置公钥缓存大小
func WithPublicKeyCacheSize(size int) Option {
	return func(c *Config) {
		c.PublicKeyCacheSize = size
	}
}

// WithAcceptFrom 设置 RPC 过滤函数
func WithAcceptFrom(fn func(peer types.PeerID) bool) Option {
	return func(c *Config) {
		c.AcceptFrom = fn
	}
}

// WithMsgIDFn 设置自定义消息 ID 函数
func WithMsgIDFn(fn func(msg *interfaces.Message) []byte) Option {
	return func(c *Config) {
		c.MsgIDFn = fn
	}
}

// WithRPCCodec 设置 RPC 编解码器
func WithRPCCodec(codec RPCCodec) Option {
	return func(c *Config) {
		c.Codec = codec
	}
}

// WithTracer 设置事件追踪
func WithTracer(tracer Tracer) Option {
	return func(c *Config) {
		c.Tracer = tracer
	}
}
