// Package crypto 提供节点身份与消息签名所需的密码学工具
//
// # 支持的密钥类型
//
//   - Ed25519（默认推荐）
//   - Secp256k1（基于 decred secp256k1 实现）
//   - RSA（公钥无法内联到 PeerID）
//
// # 快速开始
//
// 生成密钥对：
//
//	priv, pub, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
//
// 带域前缀的签名和验证：
//
//	sig, err := crypto.SignWithPrefix(priv, "libp2p-pubsub:", data)
//	ok, err := crypto.VerifyWithPrefix(pub, "libp2p-pubsub:", data, sig)
//
// 从公钥派生 PeerID，并从 PeerID 中取回内联公钥：
//
//	id, err := crypto.PeerIDFromPublicKey(pub)
//	pub2, err := crypto.ExtractPublicKey(id)
//
// # 序列化
//
// MarshalPublicKey / MarshalPrivateKey 输出与 libp2p 兼容的 protobuf 编码，
// 由 google.golang.org/protobuf/encoding/protowire 直接读写。
//
// # 架构层
//
//   - 层级：pkg（公共包）
//   - 依赖：pkg/types
package crypto
