// Package proto 定义网络协议消息（wire format）
//
// # 子包
//
//   - pubsub: pubsub RPC 帧（订阅变更 + 数据消息）
//
// # 职能
//
// pkg/proto 定义 **跨网络传输** 的协议消息：
//   - 与其它语言实现互通
//   - 需要版本兼容，未知字段必须被跳过
//   - 变更成本高（影响网络协议）
//
// # 与 pkg/types 的区别
//
// pkg/proto 定义网络协议消息，pkg/types 定义 Go 内部数据结构。
// 核心层在 internal/protocol/pubsub 中完成两者之间的转换。
//
// # 使用示例
//
//	import pb "github.com/dep2p/go-dep2p-pubsub/pkg/lib/proto/pubsub"
//
//	rpc := &pb.RPC{Subscriptions: []*pb.SubOpts{pb.NewSubOpts("news", true)}}
//	data, err := rpc.Marshal()
package proto
