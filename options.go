package dep2p

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-pubsub/config"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
)

// Option 节点配置选项
type Option func(*nodeConfig) error

// nodeConfig 节点构建参数
type nodeConfig struct {
	config *config.Config

	privateKey crypto.PrivateKey
	network    *Network
	router     interfaces.Router
	registerer prometheus.Registerer

	userFxOptions []fx.Option
}

func newNodeConfig() *nodeConfig {
	return &nodeConfig{config: config.NewConfig()}
}

func (c *nodeConfig) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置，之后的选项在其基础上修改
func WithConfig(cfg *config.Config) Option {
	return func(c *nodeConfig) error {
		if cfg == nil {
			return errors.New("nil config")
		}
		c.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(c *nodeConfig) error {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		c.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              身份与网络
// ════════════════════════════════════════════════════════════════════════════

// WithPrivateKey 使用指定私钥，忽略身份配置
func WithPrivateKey(priv crypto.PrivateKey) Option {
	return func(c *nodeConfig) error {
		if priv == nil {
			return errors.New("nil private key")
		}
		c.privateKey = priv
		return nil
	}
}

// WithNetwork 加入指定网络，未设置时加入进程默认网络
func WithNetwork(n *Network) Option {
	return func(c *nodeConfig) error {
		if n == nil {
			return errors.New("nil network")
		}
		c.network = n
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              发布订阅
// ════════════════════════════════════════════════════════════════════════════

// WithProtocols 设置 pubsub 协议 ID，按优先级排列
func WithProtocols(protocols ...string) Option {
	return func(c *nodeConfig) error {
		c.config.PubSub = c.config.PubSub.WithProtocols(protocols...)
		return nil
	}
}

// WithSignaturePolicy 设置签名策略
func WithSignaturePolicy(policy SignaturePolicy) Option {
	return func(c *nodeConfig) error {
		if !policy.IsValid() {
			return fmt.Errorf("invalid signature policy: %d", policy)
		}
		c.config.PubSub = c.config.PubSub.WithSignaturePolicy(policy)
		return nil
	}
}

// WithEmitSelf 本地发布的消息是否投递给本地处理器
func WithEmitSelf(enabled bool) Option {
	return func(c *nodeConfig) error {
		c.config.PubSub = c.config.PubSub.WithEmitSelf(enabled)
		return nil
	}
}

// WithRelay 是否处理未订阅主题的消息
func WithRelay(enabled bool) Option {
	return func(c *nodeConfig) error {
		c.config.PubSub = c.config.PubSub.WithRelay(enabled)
		return nil
	}
}

// WithRouter 使用自定义转发策略，默认 floodsub
func WithRouter(router Router) Option {
	return func(c *nodeConfig) error {
		if router == nil {
			return errors.New("nil router")
		}
		c.router = router
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              指标与扩展
// ════════════════════════════════════════════════════════════════════════════

// WithMetrics 启用 Prometheus 指标
//
// registerer 为 nil 时使用 prometheus.DefaultRegisterer。
// 同一进程内多个节点需要各自的 Registry。
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(c *nodeConfig) error {
		c.config.Metrics.Enabled = true
		c.registerer = registerer
		return nil
	}
}

// WithFxOption 追加 fx 选项，用于替换或扩展组件
func WithFxOption(opts ...fx.Option) Option {
	return func(c *nodeConfig) error {
		c.userFxOptions = append(c.userFxOptions, opts...)
		return nil
	}
}
