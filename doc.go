// Package dep2p 提供发布订阅节点
//
// 每个 Node 持有一个进程内主机和其上的发布订阅核心。
// 节点之间通过 Network 建立 yamux 连接，协议经 multistream 协商，
// 消息按签名策略（StrictSign / StrictNoSign）签名和验证，
// 默认由 floodsub 转发给所有订阅了该主题的节点。
//
// # 快速开始
//
//	network, _ := dep2p.NewNetwork(nil)
//	defer network.Close()
//
//	alice, _ := dep2p.Start(ctx, dep2p.WithNetwork(network))
//	defer alice.Close()
//	bob, _ := dep2p.Start(ctx, dep2p.WithNetwork(network))
//	defer bob.Close()
//
//	_ = bob.Subscribe("chat", func(msg *dep2p.Message) {
//	    fmt.Printf("%s: %s\n", msg.From.ShortString(), msg.Data)
//	})
//	_ = network.Connect(ctx, alice, bob)
//	_ = alice.Publish(ctx, "chat", []byte("hello"))
//
// # 组件
//
//	┌──────────────────────────────────────────────────┐
//	│  Node           dep2p.New() / dep2p.Start()      │
//	├──────────────────────────────────────────────────┤
//	│  PubSub         订阅索引、验证队列、节点流       │
//	│  Router         floodsub（可替换）               │
//	├──────────────────────────────────────────────────┤
//	│  Host           yamux 连接、multistream 协商     │
//	└──────────────────────────────────────────────────┘
//
// # 配置
//
// 配置来自 config.Config，可通过 WithConfig / WithConfigFile 整体给出，
// 也可用 WithSignaturePolicy、WithEmitSelf 等选项逐项覆盖。
// WithMetrics 启用 Prometheus 指标。
package dep2p
