package config

import "errors"

// ValidateAll 验证整个配置的有效性
//
// 与 Config.Validate 相同，额外处理 nil。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并修复常见问题
//
// 可修复的问题：
//   - 空的协议列表 -> 使用默认协议
//   - 非正的数值和时长 -> 使用默认值
//   - 启用指标但没有命名空间 -> 使用默认命名空间
//
// 修复后仍然无效时返回错误。
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	ps, defPS := &c.PubSub, DefaultPubSubConfig()
	if len(ps.Protocols) == 0 {
		ps.Protocols = defPS.Protocols
	}
	if ps.MessageProcessingConcurrency <= 0 {
		ps.MessageProcessingConcurrency = defPS.MessageProcessingConcurrency
	}
	if ps.MessageQueueSize < 0 {
		ps.MessageQueueSize = defPS.MessageQueueSize
	}
	if ps.MaxMessageSize <= 0 {
		ps.MaxMessageSize = defPS.MaxMessageSize
	}
	if ps.NewStreamTimeout <= 0 {
		ps.NewStreamTimeout = defPS.NewStreamTimeout
	}
	if ps.PublicKeyCacheSize <= 0 {
		ps.PublicKeyCacheSize = defPS.PublicKeyCacheSize
	}
	if ps.SeenTTL <= 0 {
		ps.SeenTTL = defPS.SeenTTL
	}
	if ps.SeenCacheSize <= 0 {
		ps.SeenCacheSize = defPS.SeenCacheSize
	}

	h, defHost := &c.Host, DefaultHostConfig()
	if h.NegotiationTimeout <= 0 {
		h.NegotiationTimeout = defHost.NegotiationTimeout
	}
	if h.EnableKeepAlive && h.KeepAliveInterval <= 0 {
		h.KeepAliveInterval = defHost.KeepAliveInterval
	}
	if h.MaxStreamWindowSize < defHost.MaxStreamWindowSize {
		h.MaxStreamWindowSize = defHost.MaxStreamWindowSize
	}
	if h.AcceptBacklog <= 0 {
		h.AcceptBacklog = defHost.AcceptBacklog
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsConfig().Namespace
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
