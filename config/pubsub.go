package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-dep2p-pubsub/pkg/protocolids"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// PubSubConfig 发布订阅配置
type PubSubConfig struct {
	// Protocols 注册的协议 ID，按优先级排列
	Protocols []string `json:"protocols"`

	// SignaturePolicy 全局签名策略: "StrictSign" 或 "StrictNoSign"
	SignaturePolicy types.SignaturePolicy `json:"signature_policy"`

	// CanRelayMessage 是否处理未订阅主题的消息
	CanRelayMessage bool `json:"can_relay_message"`

	// EmitSelf 本地发布的消息是否投递给本地处理器
	EmitSelf bool `json:"emit_self"`

	// MessageProcessingConcurrency 同时验证的消息数上限
	MessageProcessingConcurrency int `json:"message_processing_concurrency"`

	// MessageQueueSize 等待验证的消息积压上限
	MessageQueueSize int `json:"message_queue_size"`

	// MaxMessageSize 单帧最大字节数
	MaxMessageSize int `json:"max_message_size"`

	// NewStreamTimeout 打开出站流的超时
	NewStreamTimeout Duration `json:"new_stream_timeout"`

	// PublicKeyCacheSize 签名验证公钥缓存大小
	PublicKeyCacheSize int `json:"public_key_cache_size"`

	// SeenTTL 去重记录保留时长
	SeenTTL Duration `json:"seen_ttl"`

	// SeenCacheSize 去重记录最多条数
	SeenCacheSize int `json:"seen_cache_size"`
}

// DefaultPubSubConfig 返回默认发布订阅配置
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		Protocols:                    append([]string(nil), protocolids.DefaultPubsub...),
		SignaturePolicy:              types.StrictSign,
		CanRelayMessage:              false,
		EmitSelf:                     false,
		MessageProcessingConcurrency: 10,
		MessageQueueSize:             256,
		MaxMessageSize:               4 << 20, // 4MB
		NewStreamTimeout:             Duration(10 * time.Second),
		PublicKeyCacheSize:           1024,
		SeenTTL:                      Duration(2 * time.Minute),
		SeenCacheSize:                8192,
	}
}

// Validate 验证发布订阅配置
func (c PubSubConfig) Validate() error {
	if len(c.Protocols) == 0 {
		return errors.New("at least one protocol is required")
	}
	for _, p := range c.Protocols {
		if err := protocolids.Validate(p); err != nil {
			return err
		}
	}
	if !c.SignaturePolicy.IsValid() {
		return fmt.Errorf("invalid signature policy: %d", c.SignaturePolicy)
	}
	if c.MessageProcessingConcurrency <= 0 {
		return errors.New("message_processing_concurrency must be positive")
	}
	if c.MessageQueueSize < 0 {
		return errors.New("message_queue_size must not be negative")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}
	if c.NewStreamTimeout <= 0 {
		return errors.New("new_stream_timeout must be positive")
	}
	if c.PublicKeyCacheSize <= 0 {
		return errors.New("public_key_cache_size must be positive")
	}
	if c.SeenTTL <= 0 {
		return errors.New("seen_ttl must be positive")
	}
	if c.SeenCacheSize <= 0 {
		return errors.New("seen_cache_size must be positive")
	}
	return nil
}

// WithProtocols 设置协议 ID
func (c PubSubConfig) WithProtocols(protocols ...string) PubSubConfig {
	c.Protocols = append([]string(nil), protocols...)
	return c
}

// WithSignaturePolicy 设置签名策略
func (c PubSubConfig) WithSignaturePolicy(policy types.SignaturePolicy) PubSubConfig {
	c.SignaturePolicy = policy
	return c
}

// WithEmitSelf 设置是否投递本地发布的消息
func (c PubSubConfig) WithEmitSelf(enabled bool) PubSubConfig {
	c.EmitSelf = enabled
	return c
}

// WithRelay 设置是否处理未订阅主题的消息
func (c PubSubConfig) WithRelay(enabled bool) PubSubConfig {
	c.CanRelayMessage = enabled
	return c
}
