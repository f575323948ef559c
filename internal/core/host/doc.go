// Package host 实现进程内主机
//
// 同一个 Network 中的 Host 通过 net.Pipe 互连，每条连接上运行 yamux 会话，
// 每条流用 multistream-select 协商协议。Host 实现 interfaces.Registrar，
// 供 pubsub 等协议注册入站流处理器和连接拓扑。
//
// # 拓扑通知
//
//   - 对端支持拓扑关注的任一协议时触发 OnConnect，每个节点只触发一次
//   - 对端之后才注册的协议同样会触发 OnConnect
//   - 与该节点的最后一条连接关闭时触发 OnDisconnect
//
// # 使用示例
//
//	network, err := host.NewNetwork(nil)
//	if err != nil {
//	    return err
//	}
//	defer network.Close()
//
//	a, _ := network.NewHost(privA)
//	b, _ := network.NewHost(privB)
//
//	_, _ = b.Handle([]string{"/echo/1.0.0"}, func(in interfaces.IncomingStream) {
//	    _, _ = io.Copy(in.Stream, in.Stream)
//	})
//
//	if err := network.Connect(ctx, a.ID(), b.ID()); err != nil {
//	    return err
//	}
package host
