package dep2p

import (
	"context"
	"sync"

	"github.com/dep2p/go-dep2p-pubsub/config"
	internalconfig "github.com/dep2p/go-dep2p-pubsub/internal/config"
	"github.com/dep2p/go-dep2p-pubsub/internal/core/host"
)

// Network 进程内网络
//
// 同一网络中的节点可以互相连接。节点关闭时自动离开网络。
type Network struct {
	inner *host.Network
}

// NewNetwork 创建网络，cfg 为 nil 时使用默认主机配置
func NewNetwork(cfg *config.HostConfig) (*Network, error) {
	var hcfg *host.Config
	if cfg != nil {
		hcfg = internalconfig.ToHostConfig(*cfg)
	}
	inner, err := host.NewNetwork(hcfg)
	if err != nil {
		return nil, err
	}
	return &Network{inner: inner}, nil
}

// Connect 连接 a 和 b，返回时两端的 pubsub 都已感知对方
func (n *Network) Connect(ctx context.Context, a, b *Node) error {
	return n.inner.Connect(ctx, a.ID(), b.ID())
}

// Disconnect 断开 a 和 b 之间的所有连接
func (n *Network) Disconnect(a, b *Node) error {
	return n.inner.Disconnect(a.ID(), b.ID())
}

// Close 关闭网络及其中的所有主机
func (n *Network) Close() error {
	return n.inner.Close()
}

var (
	defaultNetworkOnce sync.Once
	defaultNetwork     *Network
)

// DefaultNetwork 返回进程默认网络
func DefaultNetwork() *Network {
	defaultNetworkOnce.Do(func() {
		inner, err := host.NewNetwork(nil)
		if err != nil {
			// 默认配置总是有效
			panic(err)
		}
		defaultNetwork = &Network{inner: inner}
	})
	return defaultNetwork
}
