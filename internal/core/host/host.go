package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	mss "github.com/multiformats/go-multistream"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-pubsub/internal/util/logger"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

var log = logger.Logger("core.host")

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrHostClosed 主机已关闭
	ErrHostClosed = errors.New("host is closed")

	// ErrUnknownHost 网络中没有该主机
	ErrUnknownHost = errors.New("unknown host")

	// ErrSelfConnect 不能连接自身
	ErrSelfConnect = errors.New("cannot connect to self")

	// ErrUnknownRegistration 注册 ID 不存在
	ErrUnknownRegistration = errors.New("unknown registration")

	// ErrNoProtocols 没有给出协议
	ErrNoProtocols = errors.New("no protocols given")
)

// 编译时接口检查
var _ interfaces.Registrar = (*Host)(nil)

// handlerEntry 入站流处理器注册
type handlerEntry struct {
	protocols []string
	handler   interfaces.StreamHandler
}

// topologyEntry 拓扑注册及已通知的节点
type topologyEntry struct {
	id       string
	topology *interfaces.Topology
	notified map[types.PeerID]struct{}
}

// Host 进程内主机
//
// 同一时刻可以和某个节点存在多条连接；拓扑回调按节点而不是按连接触发。
type Host struct {
	id      types.PeerID
	priv    crypto.PrivateKey
	network *Network
	cfg     *Config

	mux *mss.MultistreamMuxer[string]

	mu         sync.RWMutex
	handlers   map[string]*handlerEntry          // 注册 ID -> 处理器
	routes     map[string]string                 // 协议 -> 注册 ID
	topologies map[string]*topologyEntry         // 注册 ID -> 拓扑
	conns      map[types.PeerID]map[string]*conn // 节点 -> 连接 ID -> 连接

	closed atomic.Bool
}

func newHost(network *Network, priv crypto.PrivateKey, id types.PeerID) *Host {
	return &Host{
		id:         id,
		priv:       priv,
		network:    network,
		cfg:        network.cfg,
		mux:        mss.NewMultistreamMuxer[string](),
		handlers:   make(map[string]*handlerEntry),
		routes:     make(map[string]string),
		topologies: make(map[string]*topologyEntry),
		conns:      make(map[types.PeerID]map[string]*conn),
	}
}

// ID 返回本机节点 ID
func (h *Host) ID() types.PeerID {
	return h.id
}

// PrivateKey 返回本机私钥
func (h *Host) PrivateKey() crypto.PrivateKey {
	return h.priv
}

// Protocols 返回已注册的协议，按字典序
func (h *Host) Protocols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	protos := make([]string, 0, len(h.routes))
	for p := range h.routes {
		protos = append(protos, p)
	}
	sort.Strings(protos)
	return protos
}

// supportsAny 是否注册了 protocols 中任一协议
func (h *Host) supportsAny(protocols []string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, p := range protocols {
		if _, ok := h.routes[p]; ok {
			return true
		}
	}
	return false
}

// Peers 返回已连接的节点，按字典序
func (h *Host) Peers() []types.PeerID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	peers := make([]types.PeerID, 0, len(h.conns))
	for p := range h.conns {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// ConnsToPeer 返回到 peer 的连接数
func (h *Host) ConnsToPeer(peer types.PeerID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[peer])
}

// ============================================================================
//                              Registrar 实现
// ============================================================================

// Handle 为 protocols 注册入站流处理器
//
// 同一协议重复注册时，后注册的生效；注销后回落到其它仍处理该协议的注册。
// 已连接的节点会重新评估拓扑，新协议可能触发它们的 OnConnect。
func (h *Host) Handle(protocols []string, handler interfaces.StreamHandler) (string, error) {
	if h.closed.Load() {
		return "", ErrHostClosed
	}
	if len(protocols) == 0 {
		return "", ErrNoProtocols
	}
	if handler == nil {
		return "", errors.New("nil stream handler")
	}

	id := "handler-" + uuid.NewString()
	entry := &handlerEntry{
		protocols: append([]string(nil), protocols...),
		handler:   handler,
	}

	h.mu.Lock()
	h.handlers[id] = entry
	for _, p := range entry.protocols {
		h.routes[p] = id
		h.mux.AddHandler(p, nil)
	}
	remotes := h.remoteHostsLocked()
	h.mu.Unlock()

	log.Debug("注册协议处理器", "host", h.id.ShortString(), "protocols", protocols)

	// 相当于 identify push：对端拓扑重新评估本机协议
	for _, remote := range remotes {
		remote.notifyConnect(h.id)
	}
	return id, nil
}

// Register 注册拓扑回调
//
// 已连接且支持任一协议的节点会立即收到 OnConnect。
func (h *Host) Register(topology *interfaces.Topology) (string, error) {
	if h.closed.Load() {
		return "", ErrHostClosed
	}
	if topology == nil {
		return "", errors.New("nil topology")
	}
	if len(topology.Multicodecs) == 0 {
		return "", ErrNoProtocols
	}

	id := "topology-" + uuid.NewString()

	h.mu.Lock()
	h.topologies[id] = &topologyEntry{
		id:       id,
		topology: topology,
		notified: make(map[types.PeerID]struct{}),
	}
	peers := make([]types.PeerID, 0, len(h.conns))
	for p := range h.conns {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		h.notifyConnect(p)
	}
	return id, nil
}

// Unregister 注销处理器或拓扑
func (h *Host) Unregister(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.handlers[id]; ok {
		delete(h.handlers, id)
		for _, p := range entry.protocols {
			if h.routes[p] != id {
				continue
			}
			if fallback := h.fallbackLocked(p); fallback != "" {
				h.routes[p] = fallback
				continue
			}
			delete(h.routes, p)
			h.mux.RemoveHandler(p)
		}
		return nil
	}

	if _, ok := h.topologies[id]; ok {
		delete(h.topologies, id)
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnknownRegistration, id)
}

// fallbackLocked 查找另一个仍然处理协议 p 的注册
func (h *Host) fallbackLocked(p string) string {
	ids := make([]string, 0, len(h.handlers))
	for id := range h.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, hp := range h.handlers[id].protocols {
			if hp == p {
				return id
			}
		}
	}
	return ""
}

// handlerFor 返回协议的处理器
func (h *Host) handlerFor(proto string) interfaces.StreamHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	id, ok := h.routes[proto]
	if !ok {
		return nil
	}
	return h.handlers[id].handler
}

// ============================================================================
//                              连接管理
// ============================================================================

// addConn 登记新连接
func (h *Host) addConn(c *conn) error {
	if h.closed.Load() {
		return ErrHostClosed
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[c.remote.id]
	if !ok {
		m = make(map[string]*conn)
		h.conns[c.remote.id] = m
	}
	m[c.id] = c
	return nil
}

// removeConn 移除连接，最后一条连接关闭时触发 OnDisconnect
func (h *Host) removeConn(c *conn) {
	h.mu.Lock()
	m, ok := h.conns[c.remote.id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(m, c.id)
	if len(m) > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.remote.id)

	var callbacks []func(types.PeerID)
	for _, entry := range h.topologies {
		if _, ok := entry.notified[c.remote.id]; !ok {
			continue
		}
		delete(entry.notified, c.remote.id)
		if entry.topology.OnDisconnect != nil {
			callbacks = append(callbacks, entry.topology.OnDisconnect)
		}
	}
	h.mu.Unlock()

	log.Debug("节点断开", "host", h.id.ShortString(), "peer", c.remote.id.ShortString())

	for _, cb := range callbacks {
		cb(c.remote.id)
	}
}

// notifyConnect 对尚未通知过 peer 的拓扑评估并触发 OnConnect
func (h *Host) notifyConnect(peer types.PeerID) {
	h.mu.RLock()
	c := h.anyConnLocked(peer)
	var candidates []*topologyEntry
	if c != nil {
		for _, entry := range h.sortedTopologiesLocked() {
			if _, done := entry.notified[peer]; !done {
				candidates = append(candidates, entry)
			}
		}
	}
	h.mu.RUnlock()
	if len(candidates) == 0 {
		return
	}

	// 对端协议在锁外读取，两把主机锁不同时持有
	matched := candidates[:0]
	for _, entry := range candidates {
		if c.remote.supportsAny(entry.topology.Multicodecs) {
			matched = append(matched, entry)
		}
	}

	type pending struct {
		cb   func(types.PeerID, interfaces.Connection)
		conn *conn
	}
	var calls []pending

	h.mu.Lock()
	c = h.anyConnLocked(peer)
	for _, entry := range matched {
		if c == nil {
			break
		}
		// 期间可能已被注销或已通知
		if h.topologies[entry.id] != entry {
			continue
		}
		if _, done := entry.notified[peer]; done {
			continue
		}
		entry.notified[peer] = struct{}{}
		if entry.topology.OnConnect != nil {
			calls = append(calls, pending{cb: entry.topology.OnConnect, conn: c})
		}
	}
	h.mu.Unlock()

	for _, call := range calls {
		call.cb(peer, call.conn)
	}
}

// sortedTopologiesLocked 按注册 ID 排序的拓扑
func (h *Host) sortedTopologiesLocked() []*topologyEntry {
	out := make([]*topologyEntry, 0, len(h.topologies))
	for _, entry := range h.topologies {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// anyConnLocked 返回到 peer 的任一连接，按连接 ID 取最小者
func (h *Host) anyConnLocked(peer types.PeerID) *conn {
	var best *conn
	for _, c := range h.conns[peer] {
		if best == nil || c.id < best.id {
			best = c
		}
	}
	return best
}

// remoteHostsLocked 返回所有已连接节点的主机
func (h *Host) remoteHostsLocked() []*Host {
	remotes := make([]*Host, 0, len(h.conns))
	for peer := range h.conns {
		if c := h.anyConnLocked(peer); c != nil {
			remotes = append(remotes, c.remote)
		}
	}
	return remotes
}

// connsTo 返回到 peer 的所有连接
func (h *Host) connsTo(peer types.PeerID) []*conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*conn, 0, len(h.conns[peer]))
	for _, c := range h.conns[peer] {
		out = append(out, c)
	}
	return out
}

// ============================================================================
//                              生命周期
// ============================================================================

// Close 关闭主机
//
// 关闭所有连接（触发 OnDisconnect）并从网络中移除。重复调用安全。
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	h.mu.RLock()
	var all []*conn
	for _, m := range h.conns {
		for _, c := range m {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	var errs error
	for _, c := range all {
		errs = multierr.Append(errs, c.Close())
		// 对端同步移除，使双方回调在 Close 返回前完成
		if twin := c.twin; twin != nil {
			errs = multierr.Append(errs, twin.Close())
		}
	}

	h.network.removeHost(h.id)
	log.Debug("主机关闭", "host", h.id.ShortString(), "conns", len(all))
	return errs
}
