package protocolids

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// 协议前缀常量
// ============================================================================

// SysPrefix 系统协议前缀
const SysPrefix = "/dep2p/sys/"

// ============================================================================
// pubsub 协议 ID
// ============================================================================

// SysPubsub dep2p 自有的 pubsub 基础协议
const SysPubsub = "/dep2p/sys/pubsub/1.0.0"

// FloodSub libp2p floodsub 协议，线上格式与 SysPubsub 相同
const FloodSub = "/floodsub/1.0.0"

// SysTestPubsub 测试专用 pubsub 协议
const SysTestPubsub = "/dep2p/sys/test/pubsub/1.0.0"

// DefaultPubsub 默认注册的 pubsub 协议，按优先级排列
var DefaultPubsub = []string{SysPubsub, FloodSub}

// ============================================================================
// 校验
// ============================================================================

// ErrInvalidProtocolID 协议 ID 格式错误
var ErrInvalidProtocolID = errors.New("invalid protocol id")

// Validate 检查协议 ID 格式：以 "/" 开头、不含空白、至少两段
func Validate(id string) error {
	if !strings.HasPrefix(id, "/") {
		return fmt.Errorf("%w: %q must start with '/'", ErrInvalidProtocolID, id)
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidProtocolID, id)
	}
	parts := strings.Split(strings.Trim(id, "/"), "/")
	if len(parts) < 2 {
		return fmt.Errorf("%w: %q needs name and version", ErrInvalidProtocolID, id)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: %q has empty segment", ErrInvalidProtocolID, id)
		}
	}
	return nil
}

// IsSys 是否为系统协议
func IsSys(id string) bool {
	return strings.HasPrefix(id, SysPrefix)
}
