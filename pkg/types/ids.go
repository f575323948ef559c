package types

import (
	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 内部保存 multihash 原始字节（使用 string 以便作为 map key）：
//   - 公钥序列化后不超过 MaxInlineKeyLength 字节时使用 identity multihash，公钥内联在 ID 中
//   - 否则使用 sha2-256 multihash
//
// 外部表示格式：
//   - String(): Base58 编码
//   - ShortString(): 日志中的简短标识
type PeerID string

// EmptyPeerID 空节点 ID
const EmptyPeerID PeerID = ""

// MaxInlineKeyLength 可内联到 PeerID 中的序列化公钥最大长度
const MaxInlineKeyLength = 42

// String 返回 Base58 编码的字符串表示
func (id PeerID) String() string {
	if id == EmptyPeerID {
		return ""
	}
	return base58.Encode([]byte(id))
}

// ShortString 返回简短表示，格式为前 8 个字符加后 3 个字符
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) <= 12 {
		return s
	}
	return s[:8] + "..." + s[len(s)-3:]
}

// Bytes 返回 multihash 字节
func (id PeerID) Bytes() []byte {
	return []byte(id)
}

// Equals 比较两个 PeerID
func (id PeerID) Equals(other PeerID) bool {
	return id == other
}

// IsEmpty 检查是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Validate 检查 PeerID 是否为合法的 multihash
func (id PeerID) Validate() error {
	if id == EmptyPeerID {
		return ErrEmptyPeerID
	}
	if _, err := mh.Cast([]byte(id)); err != nil {
		return ErrInvalidPeerID
	}
	return nil
}

// MarshalText 实现 encoding.TextMarshaler
func (id PeerID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (id *PeerID) UnmarshalText(text []byte) error {
	parsed, err := ParsePeerID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PeerIDFromBytes 从 multihash 字节创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) == 0 {
		return EmptyPeerID, ErrEmptyPeerID
	}
	if _, err := mh.Cast(b); err != nil {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerID(b), nil
}

// ParsePeerID 从 Base58 字符串解析 PeerID
func ParsePeerID(s string) (PeerID, error) {
	if s == "" {
		return EmptyPeerID, ErrEmptyPeerID
	}
	b, err := base58.Decode(s)
	if err != nil {
		return EmptyPeerID, ErrInvalidPeerID
	}
	return PeerIDFromBytes(b)
}

// PeerIDs 将 PeerID 列表转为字符串列表（日志用）
func PeerIDs(ids []PeerID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
