// Package floodsub 实现泛洪转发策略
//
// 消息发给本地记录的所有订阅了该主题的节点，跳过消息来源节点和作者。
// 已见消息在 TTL 内只处理一次。
package floodsub

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-dep2p-pubsub/internal/util/logger"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
)

var log = logger.Logger("pubsub.floodsub")

// 默认值
const (
	DefaultSeenTTL       = 2 * time.Minute
	DefaultSeenCacheSize = 8192
)

// Config 转发策略配置
type Config struct {
	// SeenTTL 已见消息保留时长
	SeenTTL time.Duration

	// SeenCacheSize 已见消息最多记录条数
	SeenCacheSize int
}

// Option 配置选项函数
type Option func(*Config)

// WithSeenTTL 设置已见消息保留时长
func WithSeenTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.SeenTTL = ttl
	}
}

// WithSeenCacheSize 设置已见消息缓存大小
func WithSeenCacheSize(size int) Option {
	return func(c *Config) {
		c.SeenCacheSize = size
	}
}

// Router 泛洪转发
type Router struct {
	// mu 保证 MarkSeen 的检查与写入是原子的
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

var (
	_ interfaces.Router     = (*Router)(nil)
	_ interfaces.SeenFilter = (*Router)(nil)
)

// New 创建泛洪转发策略
func New(opts ...Option) *Router {
	cfg := Config{
		SeenTTL:       DefaultSeenTTL,
		SeenCacheSize: DefaultSeenCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = DefaultSeenTTL
	}
	if cfg.SeenCacheSize <= 0 {
		cfg.SeenCacheSize = DefaultSeenCacheSize
	}

	return &Router{
		seen: expirable.NewLRU[string, struct{}](cfg.SeenCacheSize, nil, cfg.SeenTTL),
	}
}

// Forward 发给订阅了该主题的节点，跳过来源节点、作者和自身
func (r *Router) Forward(ctx context.Context, msg *interfaces.Message, view interfaces.RouteView) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	self := view.Self()
	sent := 0
	for _, peer := range view.Subscribers(msg.Topic) {
		if peer == self || peer == msg.ReceivedFrom || peer == msg.From {
			continue
		}
		view.Send(peer, msg)
		sent++
	}

	log.Debug("转发消息", "topic", msg.Topic, "peers", sent)
	return nil
}

// Seen 消息是否已见
func (r *Router) Seen(msgID []byte) bool {
	_, ok := r.seen.Peek(string(msgID))
	return ok
}

// MarkSeen 标记消息已见，已标记过时返回 false
func (r *Router) MarkSeen(msgID []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := string(msgID)
	if _, ok := r.seen.Peek(key); ok {
		return false
	}
	r.seen.Add(key, struct{}{})
	return true
}

// SeenCount 当前记录的已见消息数
func (r *Router) SeenCount() int {
	return r.seen.Len()
}
