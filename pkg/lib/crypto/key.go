// Package crypto 提供节点身份与消息签名所需的密码学工具
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"strings"
)

// ============================================================================
//                              密钥类型
// ============================================================================

// KeyType 密钥类型
type KeyType int

const (
	// KeyTypeUnspecified 未指定密钥类型
	KeyTypeUnspecified KeyType = 0
	// KeyTypeRSA RSA 密钥
	KeyTypeRSA KeyType = 1
	// KeyTypeEd25519 Ed25519 密钥（默认）
	KeyTypeEd25519 KeyType = 2
	// KeyTypeSecp256k1 Secp256k1 密钥
	KeyTypeSecp256k1 KeyType = 3
)

// keySpec 一种密钥类型的全部入口
//
// wire 是 libp2p 密钥信封中的 KeyType 取值，和本地枚举值不同。
type keySpec struct {
	name      string
	wire      uint64
	generate  func(io.Reader) (PrivateKey, PublicKey, error)
	unmarshal struct {
		pub  func([]byte) (PublicKey, error)
		priv func([]byte) (PrivateKey, error)
	}
}

var keySpecs = map[KeyType]*keySpec{}

func registerKeyType(kt KeyType, spec *keySpec) {
	keySpecs[kt] = spec
}

func init() {
	ed := &keySpec{name: "Ed25519", wire: 1, generate: GenerateEd25519Key}
	ed.unmarshal.pub, ed.unmarshal.priv = UnmarshalEd25519PublicKey, UnmarshalEd25519PrivateKey
	registerKeyType(KeyTypeEd25519, ed)

	secp := &keySpec{name: "Secp256k1", wire: 2, generate: GenerateSecp256k1Key}
	secp.unmarshal.pub, secp.unmarshal.priv = UnmarshalSecp256k1PublicKey, UnmarshalSecp256k1PrivateKey
	registerKeyType(KeyTypeSecp256k1, secp)

	rsaSpec := &keySpec{name: "RSA", wire: 0, generate: func(r io.Reader) (PrivateKey, PublicKey, error) {
		return GenerateRSAKey(RSADefaultKeySize, r)
	}}
	rsaSpec.unmarshal.pub, rsaSpec.unmarshal.priv = UnmarshalRSAPublicKey, UnmarshalRSAPrivateKey
	registerKeyType(KeyTypeRSA, rsaSpec)
}

// KeyTypes 支持的密钥类型，Ed25519 在前
var KeyTypes = []KeyType{KeyTypeEd25519, KeyTypeSecp256k1, KeyTypeRSA}

// String 返回密钥类型名称
func (kt KeyType) String() string {
	if spec, ok := keySpecs[kt]; ok {
		return spec.name
	}
	if kt == KeyTypeUnspecified {
		return "Unspecified"
	}
	return "Unknown"
}

// ParseKeyType 按名称解析密钥类型，大小写不敏感，空串视为 Ed25519
func ParseKeyType(name string) (KeyType, error) {
	if name == "" {
		return KeyTypeEd25519, nil
	}
	for kt, spec := range keySpecs {
		if strings.EqualFold(spec.name, name) {
			return kt, nil
		}
	}
	return KeyTypeUnspecified, fmt.Errorf("%w: %q", ErrBadKeyType, name)
}

// wireKeyType 本地 KeyType 到密钥信封取值
func wireKeyType(kt KeyType) (uint64, error) {
	spec, ok := keySpecs[kt]
	if !ok {
		return 0, ErrBadKeyType
	}
	return spec.wire, nil
}

// localKeyType 密钥信封取值到本地 KeyType
func localKeyType(v uint64) (KeyType, error) {
	for kt, spec := range keySpecs {
		if spec.wire == v {
			return kt, nil
		}
	}
	return KeyTypeUnspecified, fmt.Errorf("%w: wire type %d", ErrBadKeyType, v)
}

// ============================================================================
//                              密钥接口
// ============================================================================

// Key 基础密钥接口
type Key interface {
	// Raw 返回原始密钥字节
	Raw() ([]byte, error)

	// Type 返回密钥类型
	Type() KeyType

	// Equals 比较两个密钥是否相等
	Equals(Key) bool
}

// PublicKey 公钥接口，用于验证 pubsub 消息签名
type PublicKey interface {
	Key

	// Verify 签名格式错误返回 (false, nil)，只有验证过程本身出错才返回 error
	Verify(data, sig []byte) (bool, error)
}

// PrivateKey 私钥接口，节点身份的来源
type PrivateKey interface {
	Key

	Sign(data []byte) ([]byte, error)

	// GetPublic 返回对应的公钥
	GetPublic() PublicKey
}

// ============================================================================
//                              生成与反序列化
// ============================================================================

// GenerateKeyPair 使用系统随机源生成密钥对
func GenerateKeyPair(keyType KeyType) (PrivateKey, PublicKey, error) {
	return GenerateKeyPairWithReader(keyType, rand.Reader)
}

// GenerateKeyPairWithReader 使用指定的随机源生成密钥对
//
// 参数：
//   - keyType: 密钥类型
//   - reader: 随机源（用于测试时的确定性生成）
//
// 返回：
//   - PrivateKey: 私钥
//   - PublicKey: 公钥
//   - error: 类型不支持时返回 ErrBadKeyType
func GenerateKeyPairWithReader(keyType KeyType, reader io.Reader) (PrivateKey, PublicKey, error) {
	spec, ok := keySpecs[keyType]
	if !ok {
		return nil, nil, ErrBadKeyType
	}
	return spec.generate(reader)
}

// UnmarshalPublicKey 从原始字节反序列化公钥
//
// 参数：
//   - keyType: 密钥类型
//   - data: 原始密钥字节
//
// 返回：
//   - PublicKey: 公钥对象
//   - error: 反序列化错误
func UnmarshalPublicKey(keyType KeyType, data []byte) (PublicKey, error) {
	spec, ok := keySpecs[keyType]
	if !ok {
		return nil, ErrBadKeyType
	}
	return spec.unmarshal.pub(data)
}

// UnmarshalPrivateKey 从原始字节反序列化指定类型的私钥
func UnmarshalPrivateKey(keyType KeyType, data []byte) (PrivateKey, error) {
	spec, ok := keySpecs[keyType]
	if !ok {
		return nil, ErrBadKeyType
	}
	return spec.unmarshal.priv(data)
}

// KeyEqual 常量时间比较两个密钥
func KeyEqual(k1, k2 Key) bool {
	if k1 == nil || k2 == nil {
		return k1 == k2
	}
	if k1.Type() != k2.Type() {
		return false
	}

	b1, err1 := k1.Raw()
	b2, err2 := k2.Raw()
	if err1 != nil || err2 != nil {
		return false
	}
	return subtle.ConstantTimeCompare(b1, b2) == 1
}

// RandomBytes 生成指定长度的加密安全随机字节
//
// 使用系统的加密安全随机源 (crypto/rand)。
//
// 参数：
//   - n: 需要生成的字节数
//
// 返回：
//   - []byte: 随机字节切片
//   - error: 随机源不可用时返回错误
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
