// Package lib 包含基础设施工具库
//
// 本目录包含与架构组件无关的通用工具库：
//
//   - crypto: 密码学原语（密钥、签名、PeerID 推导）
//   - proto: pubsub RPC 的线上格式
//
// # 与 pkg/ 其他目录的关系
//
//   - interfaces/: 组件公共接口
//   - types/: 公共类型定义
//   - protocolids/: 协议 ID 常量
//   - lib/: 基础设施工具库（本目录）
//
// # 使用示例
//
//	import (
//	    "github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
//	    pb "github.com/dep2p/go-dep2p-pubsub/pkg/lib/proto/pubsub"
//	)
package lib
