package dep2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-pubsub/internal/core/host"
	"github.com/dep2p/go-dep2p-pubsub/internal/util/logger"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
)

var log = logger.Logger("dep2p")

const (
	initializeTimeout = 30 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Node P2P 节点
//
// Node 持有一个进程内主机和其上的发布订阅服务。
// 创建后需调用 Start 才能收发消息；Close 之后不能重新启动。
type Node struct {
	config  *nodeConfig
	app     *fx.App
	network *Network

	host   *host.Host
	pubsub interfaces.PubSub

	mu      sync.RWMutex
	state   NodeState
	started bool
	closed  bool
}

// New 创建节点（不启动）
func New(ctx context.Context, opts ...Option) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := newNodeConfig()
	if err := cfg.apply(opts...); err != nil {
		return nil, fmt.Errorf("apply options: %w", err)
	}
	if cfg.network == nil {
		cfg.network = DefaultNetwork()
	}

	node := &Node{
		config:  cfg,
		network: cfg.network,
		state:   StateIdle,
	}

	app, err := buildFxApp(cfg, node)
	if err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	node.app = app

	log.Debug("节点已创建", "peer", node.ID().ShortString())
	return node, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		_ = node.Close()
		return nil, err
	}
	return node, nil
}

// Start 启动节点
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	n.state = StateStarting
	startCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	if err := n.app.Start(startCtx); err != nil {
		// fx 应用启动失败后不能再次启动
		n.closed = true
		n.state = StateStopped
		return multierr.Append(fmt.Errorf("start node: %w", err), n.host.Close())
	}

	n.started = true
	n.state = StateRunning
	log.Info("节点已启动", "peer", n.ID().ShortString())
	return nil
}

// Close 关闭节点，重复调用无副作用
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	n.state = StateStopping

	var errs error
	if n.started {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = n.app.Stop(ctx)
		cancel()
	} else {
		// 未启动时生命周期钩子不会运行，主机需要单独释放
		errs = multierr.Append(errs, n.host.Close())
	}

	n.state = StateStopped
	log.Info("节点已关闭", "peer", n.ID().ShortString())
	return errs
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// ID 返回节点 ID
func (n *Node) ID() PeerID {
	return n.host.ID()
}

// PrivateKey 返回节点私钥
func (n *Node) PrivateKey() crypto.PrivateKey {
	return n.host.PrivateKey()
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsRunning 节点是否在运行
func (n *Node) IsRunning() bool {
	return n.State() == StateRunning
}

// Network 返回节点所在的网络
func (n *Node) Network() *Network {
	return n.network
}

// Protocols 返回节点注册的协议
func (n *Node) Protocols() []string {
	return n.host.Protocols()
}

// ConnectedPeers 返回有连接的节点，不论对方是否支持 pubsub
func (n *Node) ConnectedPeers() []PeerID {
	return n.host.Peers()
}

// ════════════════════════════════════════════════════════════════════════════
//                              连接
// ════════════════════════════════════════════════════════════════════════════

// Connect 连接同一网络中的另一节点
func (n *Node) Connect(ctx context.Context, peer PeerID) error {
	return n.network.inner.Connect(ctx, n.ID(), peer)
}

// Disconnect 断开与 peer 的所有连接
func (n *Node) Disconnect(peer PeerID) error {
	return n.network.inner.Disconnect(n.ID(), peer)
}
