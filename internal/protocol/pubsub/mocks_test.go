package pubsub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub/floodsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
	pb "github.com/dep2p/go-dep2p-pubsub/pkg/lib/proto/pubsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/protocolids"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ============================================================================
//                              pipeStream
// ============================================================================

// pipeStream 基于 net.Pipe 的 Stream
type pipeStream struct {
	net.Conn
	protocol string
	resets   atomic.Int32
}

// newStreamPair 创建一对互连的流
func newStreamPair(protocol string) (*pipeStream, *pipeStream) {
	a, b := net.Pipe()
	return &pipeStream{Conn: a, protocol: protocol}, &pipeStream{Conn: b, protocol: protocol}
}

func (s *pipeStream) Reset() error {
	s.resets.Add(1)
	return s.Conn.Close()
}

func (s *pipeStream) Protocol() string {
	return s.protocol
}

// writeRPC 以帧格式写入 RPC
func (s *pipeStream) writeRPC(t *testing.T, rpc *pb.RPC) {
	t.Helper()
	data, err := rpc.Marshal()
	require.NoError(t, err)
	_, err = s.Write(appendFrame(nil, data))
	require.NoError(t, err)
}

// readRPC 读取一帧 RPC
func readRPC(t *testing.T, fr *frameReader) *pb.RPC {
	t.Helper()
	frame, err := fr.Next()
	require.NoError(t, err)
	rpc := &pb.RPC{}
	require.NoError(t, rpc.Unmarshal(frame))
	return rpc
}

// ============================================================================
//                              mockRegistrar
// ============================================================================

// mockRegistrar 记录注册的处理器和拓扑
type mockRegistrar struct {
	mu           sync.Mutex
	nextID       int
	handlers     map[string]interfaces.StreamHandler
	topologies   map[string]*interfaces.Topology
	unregistered []string

	handleErr   error
	registerErr error
}

func newMockRegistrar() *mockRegistrar {
	return &mockRegistrar{
		handlers:   make(map[string]interfaces.StreamHandler),
		topologies: make(map[string]*interfaces.Topology),
	}
}

func (r *mockRegistrar) Handle(_ []string, handler interfaces.StreamHandler) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handleErr != nil {
		return "", r.handleErr
	}
	r.nextID++
	id := fmt.Sprintf("handler-%d", r.nextID)
	r.handlers[id] = handler
	return id, nil
}

func (r *mockRegistrar) Register(topology *interfaces.Topology) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return "", r.registerErr
	}
	r.nextID++
	id := fmt.Sprintf("topology-%d", r.nextID)
	r.topologies[id] = topology
	return id, nil
}

func (r *mockRegistrar) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = append(r.unregistered, id)
	if _, ok := r.handlers[id]; ok {
		delete(r.handlers, id)
		return nil
	}
	if _, ok := r.topologies[id]; ok {
		delete(r.topologies, id)
		return nil
	}
	return errors.New("mock registrar: unknown id")
}

// handler 当前唯一的流处理器
func (r *mockRegistrar) handler() interfaces.StreamHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handlers {
		return h
	}
	return nil
}

// topology 当前唯一的拓扑
func (r *mockRegistrar) topology() *interfaces.Topology {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.topologies {
		return t
	}
	return nil
}

func (r *mockRegistrar) counts() (handlers, topologies int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers), len(r.topologies)
}

// ============================================================================
//                              mockConnection
// ============================================================================

// mockConnection 打开的流交给 onStream 处理远端一侧
type mockConnection struct {
	remote   types.PeerID
	onStream func(remoteEnd *pipeStream)
	err      error
}

func (c *mockConnection) RemotePeer() types.PeerID {
	return c.remote
}

func (c *mockConnection) NewStream(ctx context.Context, protocols []string) (interfaces.Stream, string, error) {
	if c.err != nil {
		return nil, "", c.err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	proto := protocols[0]
	local, remote := newStreamPair(proto)
	if c.onStream != nil {
		c.onStream(remote)
	}
	return local, proto, nil
}

// ============================================================================
//                              recordingTracer
// ============================================================================

// recordingTracer 记录验证结果
type recordingTracer struct {
	noopTracer

	mu        sync.Mutex
	delivered []*interfaces.Message
	rejected  []error
	dropped   []string
}

func (t *recordingTracer) DeliverMessage(msg *interfaces.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delivered = append(t.delivered, msg)
}

func (t *recordingTracer) RejectMessage(_ *interfaces.Message, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejected = append(t.rejected, err)
}

func (t *recordingTracer) DropMessage(_ *interfaces.Message, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped = append(t.dropped, reason)
}

func (t *recordingTracer) snapshot() (delivered int, rejected []error, dropped []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.delivered), append([]error(nil), t.rejected...), append([]string(nil), t.dropped...)
}

// ============================================================================
//                              测试节点
// ============================================================================

// testNode 一个已启动的 PubSub 及其 mock 依赖
type testNode struct {
	ps     *PubSub
	reg    *mockRegistrar
	priv   crypto.PrivateKey
	id     types.PeerID
	tracer *recordingTracer
}

// newTestNode 创建并启动测试节点，测试结束时停止
func newTestNode(t *testing.T, opts ...Option) *testNode {
	t.Helper()

	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	reg := newMockRegistrar()
	tracer := &recordingTracer{}
	opts = append([]Option{
		WithMulticodecs(protocolids.SysTestPubsub),
		WithTracer(tracer),
	}, opts...)

	ps, err := New(reg, floodsub.New(), priv, opts...)
	require.NoError(t, err)
	require.NoError(t, ps.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ps.Stop(ctx)
	})

	return &testNode{ps: ps, reg: reg, priv: priv, id: ps.ID(), tracer: tracer}
}

// connectNodes 模拟 a 与 b 建立连接：双方各自打开出站流
func connectNodes(t *testing.T, a, b *testNode) {
	t.Helper()
	a.reg.topology().OnConnect(b.id, a.connectionTo(b))
	b.reg.topology().OnConnect(a.id, b.connectionTo(a))
}

// disconnectNodes 模拟 a 与 b 断开连接
func disconnectNodes(a, b *testNode) {
	a.reg.topology().OnDisconnect(b.id)
	b.reg.topology().OnDisconnect(a.id)
}

// connectionTo n 到 remote 的连接，流的远端交给 remote 的流处理器
func (n *testNode) connectionTo(remote *testNode) *mockConnection {
	return &mockConnection{
		remote: remote.id,
		onStream: func(s *pipeStream) {
			handler := remote.reg.handler()
			if handler == nil {
				_ = s.Reset()
				return
			}
			handler(interfaces.IncomingStream{
				Protocol:   s.protocol,
				Stream:     s,
				Connection: &mockConnection{remote: n.id},
			})
		},
	}
}

// rawPeer 直接读写帧的远端节点
type rawPeer struct {
	id types.PeerID

	// in 本地节点写给 rawPeer 的帧
	in *frameReader

	// out rawPeer 写给本地节点
	out *pipeStream
}

// attachRawPeer 连接一个 rawPeer：本地节点打开出站流，rawPeer 打开入站流
func attachRawPeer(t *testing.T, n *testNode) *rawPeer {
	t.Helper()

	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	id, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)

	rp := &rawPeer{id: id}
	remoteEnds := make(chan *pipeStream, 1)
	n.reg.topology().OnConnect(id, &mockConnection{
		remote:   id,
		onStream: func(s *pipeStream) { remoteEnds <- s },
	})
	rp.in = newFrameReader(<-remoteEnds, DefaultMaxMessageSize)

	local, remote := newStreamPair(protocolids.SysTestPubsub)
	n.reg.handler()(interfaces.IncomingStream{
		Protocol:   protocolids.SysTestPubsub,
		Stream:     local,
		Connection: &mockConnection{remote: id},
	})
	rp.out = remote

	t.Cleanup(func() { _ = remote.Close() })
	return rp
}

// drain 在后台持续读取本地节点写给 rawPeer 的帧，返回收到的 RPC
func (rp *rawPeer) drain() <-chan *pb.RPC {
	ch := make(chan *pb.RPC, 64)
	go func() {
		defer close(ch)
		for {
			frame, err := rp.in.Next()
			if err != nil {
				return
			}
			rpc := &pb.RPC{}
			if rpc.Unmarshal(frame) == nil {
				ch <- rpc
			}
		}
	}()
	return ch
}

// waitFor 轮询直到 cond 为 true
func waitFor(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, msgAndArgs...)
}

// containsPeer 列表中是否包含 id
func containsPeer(peers []types.PeerID, id types.PeerID) bool {
	for _, p := range peers {
		if p == id {
			return true
		}
	}
	return false
}
