package config

import (
	"errors"

	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
)

// IdentityConfig 身份配置
//
// 管理节点的身份标识和密钥：
//   - 密钥类型（Ed25519/RSA/Secp256k1）
//   - 密钥文件路径
type IdentityConfig struct {
	// KeyType 密钥类型
	// 可选值: "Ed25519", "RSA", "Secp256k1"
	KeyType string `json:"key_type"`

	// KeyFile 密钥文件路径（protobuf 编码的私钥）
	// 为空时在内存中生成临时密钥
	KeyFile string `json:"key_file,omitempty"`

	// AutoGenerate 密钥文件不存在时是否生成并写入
	AutoGenerate bool `json:"auto_generate"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		KeyType:      "Ed25519",
		AutoGenerate: true,
	}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if _, err := c.CryptoKeyType(); err != nil {
		return err
	}
	if c.KeyFile == "" && !c.AutoGenerate {
		return errors.New("key_file is required when auto_generate is disabled")
	}
	return nil
}

// CryptoKeyType 将 KeyType 转换为 crypto.KeyType，大小写不敏感，空值为 Ed25519
func (c IdentityConfig) CryptoKeyType() (crypto.KeyType, error) {
	return crypto.ParseKeyType(c.KeyType)
}

// WithKeyType 设置密钥类型
func (c IdentityConfig) WithKeyType(keyType string) IdentityConfig {
	c.KeyType = keyType
	return c
}

// WithKeyFile 设置密钥文件路径
func (c IdentityConfig) WithKeyFile(path string) IdentityConfig {
	c.KeyFile = path
	return c
}
