package host

import (
	"errors"
	"io"
	"time"

	"github.com/hashicorp/yamux"
)

// yamux 要求的最小流窗口
const minStreamWindowSize = 256 * 1024

// Config Network 配置
type Config struct {
	// 超时配置
	NegotiationTimeout time.Duration // 协议协商超时（默认 10s）

	// yamux 配置
	EnableKeepAlive     bool          // 启用保活
	KeepAliveInterval   time.Duration // 保活间隔（默认 30s）
	MaxStreamWindowSize uint32        // 单流窗口（默认 256KB）
	AcceptBacklog       int           // 未接受流的积压上限（默认 256）
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		NegotiationTimeout:  10 * time.Second,
		EnableKeepAlive:     true,
		KeepAliveInterval:   30 * time.Second,
		MaxStreamWindowSize: minStreamWindowSize,
		AcceptBacklog:       256,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.NegotiationTimeout <= 0 {
		return errors.New("NegotiationTimeout must be positive")
	}
	if c.EnableKeepAlive && c.KeepAliveInterval <= 0 {
		return errors.New("KeepAliveInterval must be positive when keepalive is enabled")
	}
	if c.MaxStreamWindowSize < minStreamWindowSize {
		return errors.New("MaxStreamWindowSize must be at least 256KB")
	}
	if c.AcceptBacklog <= 0 {
		return errors.New("AcceptBacklog must be positive")
	}
	return nil
}

// yamuxConfig 转换为 yamux 原生配置
func (c *Config) yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.AcceptBacklog = c.AcceptBacklog
	cfg.EnableKeepAlive = c.EnableKeepAlive
	if c.KeepAliveInterval > 0 {
		cfg.KeepAliveInterval = c.KeepAliveInterval
	}
	cfg.MaxStreamWindowSize = c.MaxStreamWindowSize
	cfg.LogOutput = io.Discard // 禁用日志输出
	return cfg
}

// ConfigOption 配置选项函数类型
type ConfigOption func(*Config)

// WithNegotiationTimeout 设置协议协商超时
func WithNegotiationTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.NegotiationTimeout = timeout
	}
}

// WithKeepAlive 设置保活
func WithKeepAlive(enable bool, interval time.Duration) ConfigOption {
	return func(c *Config) {
		c.EnableKeepAlive = enable
		c.KeepAliveInterval = interval
	}
}

// WithMaxStreamWindowSize 设置单流窗口
func WithMaxStreamWindowSize(size uint32) ConfigOption {
	return func(c *Config) {
		c.MaxStreamWindowSize = size
	}
}

// ApplyOptions 应用配置选项
func (c *Config) ApplyOptions(opts ...ConfigOption) {
	for _, opt := range opts {
		opt(c)
	}
}
