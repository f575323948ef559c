package config

import (
	"errors"
	"time"
)

// HostConfig 进程内主机配置
type HostConfig struct {
	// NegotiationTimeout 协议协商超时
	NegotiationTimeout Duration `json:"negotiation_timeout"`

	// EnableKeepAlive 启用 yamux 保活
	EnableKeepAlive bool `json:"enable_keep_alive"`

	// KeepAliveInterval 保活间隔
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// MaxStreamWindowSize 单流窗口（字节，至少 256KB）
	MaxStreamWindowSize uint32 `json:"max_stream_window_size"`

	// AcceptBacklog 未接受流的积压上限
	AcceptBacklog int `json:"accept_backlog"`
}

// DefaultHostConfig 返回默认主机配置
func DefaultHostConfig() HostConfig {
	return HostConfig{
		NegotiationTimeout:  Duration(10 * time.Second),
		EnableKeepAlive:     true,
		KeepAliveInterval:   Duration(30 * time.Second),
		MaxStreamWindowSize: 256 * 1024,
		AcceptBacklog:       256,
	}
}

// Validate 验证主机配置
func (c HostConfig) Validate() error {
	if c.NegotiationTimeout <= 0 {
		return errors.New("negotiation_timeout must be positive")
	}
	if c.EnableKeepAlive && c.KeepAliveInterval <= 0 {
		return errors.New("keep_alive_interval must be positive when keepalive is enabled")
	}
	if c.MaxStreamWindowSize < 256*1024 {
		return errors.New("max_stream_window_size must be at least 256KB")
	}
	if c.AcceptBacklog <= 0 {
		return errors.New("accept_backlog must be positive")
	}
	return nil
}
