// Package pubsub 实现发布订阅核心层
//
// 协议标识: /dep2p/sys/pubsub/1.0.0，兼容 /floodsub/1.0.0
//
// # 架构定位
//
//   - 公共接口: pkg/interfaces/pubsub.go
//   - 线上格式: pkg/lib/proto/pubsub
//   - 依赖: Registrar（流处理器与连接通知），Router（转发策略）
//
// # 核心功能
//
//  1. PeerStreams - 每个远端节点一条入站流和一条出站流，后附加的替换之前的
//  2. 分帧 - uvarint 长度前缀
//  3. 签名策略 - StrictSign / StrictNoSign 的构造、验证和消息 ID
//  4. 订阅索引 - 记录远端节点订阅的主题，节点集合为空时删除主题
//  5. 消息队列 - 有界并发验证，队列满时对读循环形成背压
//  6. 主题验证器与处理器注册表
//
// # 并发模型
//
// 每个节点一个读 goroutine 和一个写 goroutine；消息验证在共享的有界队列中执行。
// peers、topics、subscriptions 由同一把锁保护。
// 单个 RPC 内的订阅变更在其消息入队之前按顺序应用。
//
// # 使用示例
//
//	ps, err := pubsub.New(registrar, floodsub.New(), priv,
//	    pubsub.WithMulticodecs(protocolids.DefaultPubsub...),
//	    pubsub.WithEmitSelf(true),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := ps.Start(ctx); err != nil {
//	    return err
//	}
//	defer ps.Stop(ctx)
//
//	_ = ps.Subscribe("news", func(msg *interfaces.Message) {
//	    fmt.Printf("%s: %s\n", msg.From, msg.Data)
//	})
//	_ = ps.Publish(ctx, "news", []byte("hello"))
package pubsub
