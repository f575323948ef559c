package types

import (
	"fmt"
	"strings"
)

// ============================================================================
//                              SignaturePolicy - 签名策略
// ============================================================================

// SignaturePolicy 消息签名策略
//
// 每个实例在构造时确定，运行期间不可切换。
type SignaturePolicy int

const (
	// StrictSign 所有消息必须携带 from/seqno/signature，默认策略
	StrictSign SignaturePolicy = iota
	// StrictNoSign 消息不得携带 from/seqno/signature/key
	StrictNoSign
)

// String 返回策略名称
func (p SignaturePolicy) String() string {
	switch p {
	case StrictSign:
		return "StrictSign"
	case StrictNoSign:
		return "StrictNoSign"
	default:
		return fmt.Sprintf("SignaturePolicy(%d)", int(p))
	}
}

// IsValid 检查是否为已知策略
func (p SignaturePolicy) IsValid() bool {
	return p == StrictSign || p == StrictNoSign
}

// MarshalText 实现 encoding.TextMarshaler
func (p SignaturePolicy) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSignaturePolicy, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (p *SignaturePolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseSignaturePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseSignaturePolicy 解析策略名称（大小写不敏感）
func ParseSignaturePolicy(s string) (SignaturePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strictsign", "strict-sign", "strict_sign":
		return StrictSign, nil
	case "strictnosign", "strict-no-sign", "strict_no_sign":
		return StrictNoSign, nil
	default:
		return StrictSign, fmt.Errorf("%w: %q", ErrInvalidSignaturePolicy, s)
	}
}

// ============================================================================
//                              SubOpt - 订阅变更
// ============================================================================

// SubOpt 一条订阅变更
type SubOpt struct {
	Topic     string
	Subscribe bool
}
