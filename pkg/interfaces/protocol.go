// Package interfaces 定义公共接口
//
// 本文件定义 pubsub 依赖的外部协作方：Registrar、Topology、Connection、Stream。
// 传输、升级、多路复用都在这些接口之外完成。
package interfaces

import (
	"context"
	"io"

	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// Stream 已协商好协议的双向字节流
type Stream interface {
	io.ReadWriteCloser

	// Reset 立即中止流，两端的读写都会失败
	Reset() error

	// Protocol 返回协商得到的协议 ID
	Protocol() string
}

// Connection 到某个远端节点的连接
type Connection interface {
	// RemotePeer 返回远端节点 ID
	RemotePeer() types.PeerID

	// NewStream 打开新流，按顺序尝试 protocols，返回流和协商成功的协议
	NewStream(ctx context.Context, protocols []string) (Stream, string, error)
}

// IncomingStream 入站流及其上下文
type IncomingStream struct {
	// Protocol 协商得到的协议
	Protocol string

	// Stream 原始流
	Stream Stream

	// Connection 流所属连接
	Connection Connection
}

// StreamHandler 入站流处理函数
//
// 处理函数可以长期持有流，返回前不要求读完。
type StreamHandler func(in IncomingStream)

// Topology 按协议过滤的连接拓扑回调
//
// 只有支持 Multicodecs 中任一协议的节点才会触发回调。
type Topology struct {
	// Multicodecs 关注的协议
	Multicodecs []string

	// OnConnect 节点连接
	OnConnect func(peer types.PeerID, conn Connection)

	// OnDisconnect 节点断开
	OnDisconnect func(peer types.PeerID)
}

// Registrar 协议处理器与拓扑注册表
type Registrar interface {
	// Handle 为 protocols 注册入站流处理器，返回注册 ID
	Handle(protocols []string, handler StreamHandler) (string, error)

	// Register 注册拓扑回调，返回注册 ID
	//
	// 已经连接且支持协议的节点会立即收到 OnConnect。
	Register(topology *Topology) (string, error)

	// Unregister 注销 Handle 或 Register 返回的 ID
	Unregister(id string) error
}
