// Package types 定义 pubsub 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
//
// # 文件组织
//
//   - ids.go     - PeerID（multihash 字节，Base58 外部表示）
//   - enums.go   - SignaturePolicy, SubOpt
//   - errors.go  - 公共错误定义
//
// # 使用示例
//
//	id, err := types.ParsePeerID("12D3KooW...")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(id.ShortString())
package types
