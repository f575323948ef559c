package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"

	sha256 "github.com/minio/sha256-simd"
)

// RSA 密钥常量
const (
	// RSAMinKeySize 最小密钥位数
	RSAMinKeySize = 2048
	// RSADefaultKeySize 默认密钥位数
	RSADefaultKeySize = 2048
	// RSAMaxKeySize 最大密钥位数
	RSAMaxKeySize = 8192
)

// ============================================================================
//                              RSAPublicKey
// ============================================================================

// RSAPublicKey RSA 公钥
//
// 序列化后远大于 MaxInlineKeyLength，因此 StrictSign 消息会携带 key 字段。
type RSAPublicKey struct {
	k *rsa.PublicKey
}

// Raw 返回 PKIX 格式的公钥字节
func (k *RSAPublicKey) Raw() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(k.k)
}

// Type 返回密钥类型
func (k *RSAPublicKey) Type() KeyType {
	return KeyTypeRSA
}

// Equals 比较公钥
func (k *RSAPublicKey) Equals(other Key) bool {
	rk, ok := other.(*RSAPublicKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return k.k.N.Cmp(rk.k.N) == 0 && k.k.E == rk.k.E
}

// Verify 验证 PKCS#1 v1.5 + SHA-256 签名
func (k *RSAPublicKey) Verify(data, sig []byte) (bool, error) {
	hash := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(k.k, crypto.SHA256, hash[:], sig) == nil, nil
}

// ============================================================================
//                              RSAPrivateKey
// ============================================================================

// RSAPrivateKey RSA 私钥
type RSAPrivateKey struct {
	k *rsa.PrivateKey
}

// Raw 返回 PKCS#1 格式的私钥字节
func (k *RSAPrivateKey) Raw() ([]byte, error) {
	return x509.MarshalPKCS1PrivateKey(k.k), nil
}

// Type 返回密钥类型
func (k *RSAPrivateKey) Type() KeyType {
	return KeyTypeRSA
}

// Equals 比较私钥
func (k *RSAPrivateKey) Equals(other Key) bool {
	rk, ok := other.(*RSAPrivateKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return k.k.D.Cmp(rk.k.D) == 0 && k.k.N.Cmp(rk.k.N) == 0
}

// GetPublic 返回对应的公钥
func (k *RSAPrivateKey) GetPublic() PublicKey {
	return &RSAPublicKey{k: &k.k.PublicKey}
}

// Sign 使用 PKCS#1 v1.5 + SHA-256 签名
func (k *RSAPrivateKey) Sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, k.k, crypto.SHA256, hash[:])
}

// ============================================================================
//                              工厂函数
// ============================================================================

// GenerateRSAKey 生成指定位数的 RSA 密钥对
//
// 参数：
//   - bits: 密钥位数，不能小于 RSAMinKeySize
//   - src: 随机源
//
// 返回：
//   - PrivateKey: 私钥
//   - PublicKey: 公钥
//   - error: 位数不足或生成失败
func GenerateRSAKey(bits int, src io.Reader) (PrivateKey, PublicKey, error) {
	if bits < RSAMinKeySize || bits > RSAMaxKeySize {
		return nil, nil, fmt.Errorf("%w: RSA key size must be in [%d, %d] bits", ErrInvalidKeySize, RSAMinKeySize, RSAMaxKeySize)
	}

	priv, err := rsa.GenerateKey(src, bits)
	if err != nil {
		return nil, nil, err
	}
	return &RSAPrivateKey{k: priv}, &RSAPublicKey{k: &priv.PublicKey}, nil
}

// UnmarshalRSAPublicKey 从 PKIX 字节反序列化 RSA 公钥
//
// 参数：
//   - data: PKIX DER 编码的公钥
//
// 返回：
//   - PublicKey: 公钥对象
//   - error: 格式错误或不是 RSA 公钥
func UnmarshalRSAPublicKey(data []byte) (PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKey
	}
	if rsaPub.N.BitLen() < RSAMinKeySize {
		return nil, fmt.Errorf("%w: RSA key too small", ErrInvalidPublicKey)
	}

	return &RSAPublicKey{k: rsaPub}, nil
}

// UnmarshalRSAPrivateKey 反序列化私钥，支持 PKCS#1 与 PKCS#8
func UnmarshalRSAPrivateKey(data []byte) (PrivateKey, error) {
	if priv, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return checkRSAPrivateKey(priv)
	}

	key, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidPrivateKey
	}
	return checkRSAPrivateKey(rsaKey)
}

func checkRSAPrivateKey(priv *rsa.PrivateKey) (PrivateKey, error) {
	if priv.N.BitLen() < RSAMinKeySize {
		return nil, fmt.Errorf("%w: RSA key too small", ErrInvalidPrivateKey)
	}
	return &RSAPrivateKey{k: priv}, nil
}
