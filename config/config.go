// Package config 提供用户配置
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.PubSub.EmitSelf = true
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
//
//	// 从文件加载
//	cfg, err := config.LoadFromFile("dep2p.json")
package config

import "fmt"

// Config 节点完整配置
//
// 配置按功能模块组织：
//   - Identity: 身份和密钥
//   - PubSub: 发布订阅核心
//   - Host: 进程内主机（yamux、协议协商）
//   - Metrics: Prometheus 指标
type Config struct {
	// Identity 身份配置
	Identity IdentityConfig `json:"identity"`

	// PubSub 发布订阅配置
	PubSub PubSubConfig `json:"pubsub"`

	// Host 主机配置
	Host HostConfig `json:"host"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity: DefaultIdentityConfig(),
		PubSub:   DefaultPubSubConfig(),
		Host:     DefaultHostConfig(),
		Metrics:  DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
//
// 返回第一个无效子配置的错误，错误信息带子配置名前缀。
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.PubSub.Validate(); err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	if err := c.Host.Validate(); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
