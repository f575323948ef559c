// Package config 将用户配置转换为各组件的内部配置
//
// config 包负责：
//   - 用户配置（config.Config）到组件配置的转换
//   - 节点身份密钥的加载或生成
//   - 通过 fx 把组件配置注入各模块
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-pubsub/config"
	"github.com/dep2p/go-dep2p-pubsub/internal/core/host"
	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub"
	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub/floodsub"
	"github.com/dep2p/go-dep2p-pubsub/internal/util/logger"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
)

var log = logger.Logger("config")

// ============================================================================
//                              组件配置转换
// ============================================================================

// ToPubSubConfig 转换为 pubsub 核心配置
func ToPubSubConfig(c config.PubSubConfig) *pubsub.Config {
	cfg := pubsub.DefaultConfig()
	cfg.Multicodecs = append([]string(nil), c.Protocols...)
	cfg.SignaturePolicy = c.SignaturePolicy
	cfg.CanRelayMessage = c.CanRelayMessage
	cfg.EmitSelf = c.EmitSelf
	cfg.MessageProcessingConcurrency = c.MessageProcessingConcurrency
	cfg.MessageQueueSize = c.MessageQueueSize
	cfg.MaxMessageSize = c.MaxMessageSize
	cfg.NewStreamTimeout = c.NewStreamTimeout.Duration()
	cfg.PublicKeyCacheSize = c.PublicKeyCacheSize
	return cfg
}

// ToHostConfig 转换为主机配置
func ToHostConfig(c config.HostConfig) *host.Config {
	cfg := host.DefaultConfig()
	cfg.NegotiationTimeout = c.NegotiationTimeout.Duration()
	cfg.EnableKeepAlive = c.EnableKeepAlive
	cfg.KeepAliveInterval = c.KeepAliveInterval.Duration()
	cfg.MaxStreamWindowSize = c.MaxStreamWindowSize
	cfg.AcceptBacklog = c.AcceptBacklog
	return cfg
}

// ToRouterOptions 转换为 floodsub 选项
func ToRouterOptions(c config.PubSubConfig) []floodsub.Option {
	return []floodsub.Option{
		floodsub.WithSeenTTL(c.SeenTTL.Duration()),
		floodsub.WithSeenCacheSize(c.SeenCacheSize),
	}
}

// ============================================================================
//                              身份密钥
// ============================================================================

// LoadOrGenerateKey 加载或生成节点私钥
//
// KeyFile 为空时生成临时密钥；文件不存在且 AutoGenerate 时生成并写入（权限 0600）。
func LoadOrGenerateKey(c config.IdentityConfig) (crypto.PrivateKey, error) {
	keyType, err := c.CryptoKeyType()
	if err != nil {
		return nil, err
	}

	if c.KeyFile == "" {
		priv, _, err := crypto.GenerateKeyPair(keyType)
		if err != nil {
			return nil, fmt.Errorf("generate %s key: %w", keyType, err)
		}
		return priv, nil
	}

	data, err := os.ReadFile(c.KeyFile)
	switch {
	case err == nil:
		priv, err := crypto.UnmarshalPrivateKeyBytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode key file %s: %w", c.KeyFile, err)
		}
		if priv.Type() != keyType {
			log.Warn("密钥文件类型与配置不一致，使用文件中的密钥",
				"file", c.KeyFile, "configured", keyType.String(), "actual", priv.Type().String())
		}
		return priv, nil

	case errors.Is(err, fs.ErrNotExist) && c.AutoGenerate:
		priv, _, err := crypto.GenerateKeyPair(keyType)
		if err != nil {
			return nil, fmt.Errorf("generate %s key: %w", keyType, err)
		}
		if err := saveKey(c.KeyFile, priv); err != nil {
			return nil, err
		}
		log.Info("已生成新的节点密钥", "file", c.KeyFile, "type", keyType.String())
		return priv, nil

	default:
		return nil, fmt.Errorf("read key file %s: %w", c.KeyFile, err)
	}
}

func saveKey(path string, priv crypto.PrivateKey) error {
	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("encode key: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// ============================================================================
//                              fx 模块
// ============================================================================

// ProviderResult fx 提供者结果
type ProviderResult struct {
	fx.Out

	PubSubConfig *pubsub.Config
	HostConfig   *host.Config
	PrivateKey   crypto.PrivateKey
	Router       interfaces.Router
}

// ProvideConfig 校验用户配置并转换为组件配置
func ProvideConfig(cfg *config.Config) (ProviderResult, error) {
	if err := config.ValidateAll(cfg); err != nil {
		return ProviderResult{}, fmt.Errorf("配置验证失败: %w", err)
	}

	priv, err := LoadOrGenerateKey(cfg.Identity)
	if err != nil {
		return ProviderResult{}, err
	}

	return ProviderResult{
		PubSubConfig: ToPubSubConfig(cfg.PubSub),
		HostConfig:   ToHostConfig(cfg.Host),
		PrivateKey:   priv,
		Router:       floodsub.New(ToRouterOptions(cfg.PubSub)...),
	}, nil
}

// Module 返回配置模块
func Module(cfg *config.Config) fx.Option {
	return fx.Module("config",
		fx.Supply(cfg),
		fx.Provide(ProvideConfig),
	)
}
