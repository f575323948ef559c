package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ErrNetworkClosed 网络已关闭
var ErrNetworkClosed = errors.New("network is closed")

// Network 进程内网络
//
// 持有一组 Host，负责在它们之间建立和拆除连接。
type Network struct {
	cfg *Config

	mu     sync.RWMutex
	hosts  map[types.PeerID]*Host
	closed bool
}

// NewNetwork 创建网络，cfg 为 nil 时使用默认配置
func NewNetwork(cfg *Config) (*Network, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid host config: %w", err)
	}
	return &Network{
		cfg:   cfg,
		hosts: make(map[types.PeerID]*Host),
	}, nil
}

// NewHost 用 priv 创建主机，节点 ID 由公钥派生
func (n *Network) NewHost(priv crypto.PrivateKey) (*Host, error) {
	if priv == nil {
		return nil, errors.New("nil private key")
	}
	id, err := crypto.PeerIDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrNetworkClosed
	}
	if _, exists := n.hosts[id]; exists {
		return nil, fmt.Errorf("host %s already exists", id.ShortString())
	}

	h := newHost(n, priv, id)
	n.hosts[id] = h
	log.Debug("创建主机", "host", id.ShortString())
	return h, nil
}

// Host 按节点 ID 查找主机
func (n *Network) Host(id types.PeerID) (*Host, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.hosts[id]
	return h, ok
}

// Hosts 返回所有主机，按节点 ID 排序
func (n *Network) Hosts() []*Host {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*Host, 0, len(n.hosts))
	for _, h := range n.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (n *Network) pair(a, b types.PeerID) (*Host, *Host, error) {
	if a == b {
		return nil, nil, ErrSelfConnect
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, nil, ErrNetworkClosed
	}
	ha, ok := n.hosts[a]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownHost, a.ShortString())
	}
	hb, ok := n.hosts[b]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownHost, b.ShortString())
	}
	return ha, hb, nil
}

// Connect 在 a 和 b 之间建立一条新连接
//
// a 为 yamux 客户端。返回前两端的拓扑回调都已执行完毕。
func (n *Network) Connect(ctx context.Context, a, b types.PeerID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ha, hb, err := n.pair(a, b)
	if err != nil {
		return err
	}

	ycfg := n.cfg.yamuxConfig()
	pa, pb := net.Pipe()

	sa, err := yamux.Client(pa, ycfg)
	if err != nil {
		return multierr.Combine(fmt.Errorf("yamux client: %w", err), pa.Close(), pb.Close())
	}
	sb, err := yamux.Server(pb, ycfg)
	if err != nil {
		return multierr.Combine(fmt.Errorf("yamux server: %w", err), sa.Close(), pb.Close())
	}

	id := uuid.NewString()
	ca := newConn(id, ha, hb, sa)
	cb := newConn(id, hb, ha, sb)
	ca.twin, cb.twin = cb, ca

	if err := ha.addConn(ca); err != nil {
		return multierr.Combine(err, sa.Close(), sb.Close())
	}
	if err := hb.addConn(cb); err != nil {
		return multierr.Combine(err, ca.Close(), sb.Close())
	}

	go ca.acceptLoop()
	go cb.acceptLoop()

	log.Debug("建立连接", "a", a.ShortString(), "b", b.ShortString(), "conn", id)

	ha.notifyConnect(b)
	hb.notifyConnect(a)
	return nil
}

// Disconnect 关闭 a 和 b 之间的所有连接
//
// 返回前两端的 OnDisconnect 都已执行完毕。
func (n *Network) Disconnect(a, b types.PeerID) error {
	ha, hb, err := n.pair(a, b)
	if err != nil {
		return err
	}

	// 两端都要遍历：单边关闭的连接，对端可能尚未感知
	conns := append(ha.connsTo(b), hb.connsTo(a)...)

	var errs error
	for _, c := range conns {
		errs = multierr.Append(errs, c.Close())
		errs = multierr.Append(errs, c.twin.Close())
	}
	return errs
}

// removeHost 主机关闭时调用
func (n *Network) removeHost(id types.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.hosts, id)
}

// Close 关闭所有主机
func (n *Network) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	hosts := make([]*Host, 0, len(n.hosts))
	for _, h := range n.hosts {
		hosts = append(hosts, h)
	}
	n.mu.Unlock()

	var errs error
	for _, h := range hosts {
		errs = multierr.Append(errs, h.Close())
	}
	return errs
}
