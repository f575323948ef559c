package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub/floodsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
	pb "github.com/dep2p/go-dep2p-pubsub/pkg/lib/proto/pubsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/protocolids"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

func subscribersOf(n *testNode, topic string) []types.PeerID {
	peers, _ := n.ps.GetSubscribers(topic)
	return peers
}

func (rp *rawPeer) send(t *testing.T, rpc *pb.RPC) {
	t.Helper()
	rp.out.writeRPC(t, rpc)
}

func (rp *rawPeer) subscribe(t *testing.T, topic string, subscribe bool) {
	t.Helper()
	rp.send(t, &pb.RPC{Subscriptions: []*pb.SubOpts{pb.NewSubOpts(topic, subscribe)}})
}

func unsignedMessage(topic, data string) *pb.Message {
	return &pb.Message{TopicIDs: []string{topic}, Data: []byte(data)}
}

func hasDropReason(n *testNode, reason string) bool {
	_, _, dropped := n.tracer.snapshot()
	for _, r := range dropped {
		if r == reason {
			return true
		}
	}
	return false
}

// ============================================================================
//                              构造与生命周期
// ============================================================================

func TestNew_Validation(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	reg := newMockRegistrar()
	router := floodsub.New()
	codecs := WithMulticodecs(protocolids.SysTestPubsub)

	tests := []struct {
		name string
		new  func() (*PubSub, error)
		want error
	}{
		{"nil registrar", func() (*PubSub, error) { return New(nil, router, priv, codecs) }, ErrNilRegistrar},
		{"nil router", func() (*PubSub, error) { return New(reg, nil, priv, codecs) }, ErrNilRouter},
		{"nil key", func() (*PubSub, error) { return New(reg, router, nil, codecs) }, ErrNilPrivateKey},
		{"no multicodecs", func() (*PubSub, error) { return New(reg, router, priv) }, ErrNoMulticodecs},
		{"bad policy", func() (*PubSub, error) {
			return New(reg, router, priv, codecs, WithSignaturePolicy(types.SignaturePolicy(7)))
		}, ErrInvalidSignaturePolicy},
		{"bad concurrency", func() (*PubSub, error) {
			return New(reg, router, priv, codecs, WithMessageProcessingConcurrency(0))
		}, ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := tt.new()
			assert.Nil(t, ps)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	id, err := crypto.PeerIDFromPrivateKey(priv)
	require.NoError(t, err)

	ps, err := New(newMockRegistrar(), floodsub.New(), priv, WithMulticodecs(protocolids.DefaultPubsub...))
	require.NoError(t, err)

	assert.Equal(t, id, ps.ID())
	assert.False(t, ps.IsStarted())
	cfg := ps.Config()
	assert.Equal(t, types.StrictSign, cfg.SignaturePolicy)
	assert.Equal(t, DefaultMessageProcessingConcurrency, cfg.MessageProcessingConcurrency)
	assert.Equal(t, protocolids.DefaultPubsub, cfg.Multicodecs)
	assert.False(t, cfg.EmitSelf)
	assert.False(t, cfg.CanRelayMessage)
}

func TestPubSub_StartStopIdempotent(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	reg := newMockRegistrar()
	ps, err := New(reg, floodsub.New(), priv, WithMulticodecs(protocolids.SysTestPubsub))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ps.Start(ctx))
	require.NoError(t, ps.Start(ctx))
	assert.True(t, ps.IsStarted())

	handlers, topologies := reg.counts()
	assert.Equal(t, 1, handlers)
	assert.Equal(t, 1, topologies)
	assert.Equal(t, []string{protocolids.SysTestPubsub}, reg.topology().Multicodecs)

	require.NoError(t, ps.Stop(ctx))
	require.NoError(t, ps.Stop(ctx))
	assert.False(t, ps.IsStarted())

	handlers, topologies = reg.counts()
	assert.Zero(t, handlers)
	assert.Zero(t, topologies)
	assert.Len(t, reg.unregistered, 2)

	// 停止后可以再次启动
	require.NoError(t, ps.Start(ctx))
	handlers, topologies = reg.counts()
	assert.Equal(t, 1, handlers)
	assert.Equal(t, 1, topologies)
	require.NoError(t, ps.Stop(ctx))
}

func TestPubSub_StartHandleError(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	reg := newMockRegistrar()
	reg.handleErr = errors.New("protocol busy")
	ps, err := New(reg, floodsub.New(), priv, WithMulticodecs(protocolids.SysTestPubsub))
	require.NoError(t, err)

	err = ps.Start(context.Background())
	assert.ErrorIs(t, err, reg.handleErr)
	assert.False(t, ps.IsStarted())
}

func TestPubSub_StartRegisterError(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)

	reg := newMockRegistrar()
	reg.registerErr = errors.New("topology rejected")
	ps, err := New(reg, floodsub.New(), priv, WithMulticodecs(protocolids.SysTestPubsub))
	require.NoError(t, err)

	err = ps.Start(context.Background())
	assert.ErrorIs(t, err, reg.registerErr)
	assert.False(t, ps.IsStarted())

	// 已注册的流处理器被撤销
	handlers, _ := reg.counts()
	assert.Zero(t, handlers)
}

func TestPubSub_NotStarted(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
	require.NoError(t, err)
	ps, err := New(newMockRegistrar(), floodsub.New(), priv, WithMulticodecs(protocolids.SysTestPubsub))
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, ps.Publish(ctx, "t", []byte("x")), ErrNotStarted)
	assert.ErrorIs(t, ps.Subscribe("t"), ErrNotStarted)
	assert.ErrorIs(t, ps.Unsubscribe("t"), ErrNotStarted)

	_, err = ps.GetTopics()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = ps.GetSubscribers("t")
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.Empty(t, ps.Peers())
	assert.Zero(t, ps.MaxInFlight())
}

func TestPubSub_InvalidTopic(t *testing.T) {
	n := newTestNode(t)

	assert.ErrorIs(t, n.ps.Publish(context.Background(), "", []byte("x")), ErrInvalidTopic)
	assert.ErrorIs(t, n.ps.Subscribe(""), ErrInvalidTopic)
	assert.ErrorIs(t, n.ps.Unsubscribe(""), ErrInvalidTopic)
	_, err := n.ps.GetSubscribers("")
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestPubSub_IncomingStreamAfterStop(t *testing.T) {
	n := newTestNode(t)
	handler := n.reg.handler()
	require.NoError(t, n.ps.Stop(context.Background()))

	local, _ := newStreamPair(protocolids.SysTestPubsub)
	handler(interfaces.IncomingStream{
		Protocol:   protocolids.SysTestPubsub,
		Stream:     local,
		Connection: &mockConnection{remote: "late"},
	})

	assert.Equal(t, int32(1), local.resets.Load())
	assert.Empty(t, n.ps.Peers())
}

func TestPubSub_ConnectNewStreamError(t *testing.T) {
	n := newTestNode(t)
	n.reg.topology().OnConnect("unreachable", &mockConnection{
		remote: "unreachable",
		err:    errors.New("protocol not supported"),
	})
	assert.Empty(t, n.ps.Peers())
}

// ============================================================================
//                              订阅
// ============================================================================

// A 订阅后 B 在有限时间内看到 A
func TestPubSub_SubscriptionPropagates(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	connectNodes(t, a, b)

	require.NoError(t, a.ps.Subscribe("foo"))

	waitFor(t, func() bool { return containsPeer(subscribersOf(b, "foo"), a.id) })

	topics, err := a.ps.GetTopics()
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, topics)
}

func TestPubSub_SubscriptionsSentOnConnect(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	require.NoError(t, a.ps.Subscribe("beta"))
	require.NoError(t, a.ps.Subscribe("alpha"))

	connectNodes(t, a, b)

	waitFor(t, func() bool {
		return containsPeer(subscribersOf(b, "alpha"), a.id) && containsPeer(subscribersOf(b, "beta"), a.id)
	})

	topics, err := a.ps.GetTopics()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, topics)
}

// 连续两帧先订阅后取消，节点最终不在 topics["x"] 中
func TestPubSub_SubscribeThenUnsubscribeFrames(t *testing.T) {
	n := newTestNode(t)
	rp := attachRawPeer(t, n)

	rp.subscribe(t, "x", true)
	waitFor(t, func() bool { return containsPeer(subscribersOf(n, "x"), rp.id) })

	rp.subscribe(t, "x", false)
	waitFor(t, func() bool { return len(subscribersOf(n, "x")) == 0 })

	n.ps.mu.RLock()
	_, ok := n.ps.topics["x"]
	n.ps.mu.RUnlock()
	assert.False(t, ok, "empty peer set must be pruned")
}

func TestPubSub_SubscriptionChangeEvents(t *testing.T) {
	n := newTestNode(t)

	events := make(chan []types.SubOpt, 4)
	n.ps.OnSubscriptionChange(func(peer types.PeerID, subs []types.SubOpt) {
		events <- subs
	})

	rp := attachRawPeer(t, n)
	rp.send(t, &pb.RPC{Subscriptions: []*pb.SubOpts{
		pb.NewSubOpts("a", true),
		pb.NewSubOpts("", true),
		pb.NewSubOpts("b", true),
		pb.NewSubOpts("a", false),
	}})

	select {
	case subs := <-events:
		assert.Equal(t, []types.SubOpt{
			{Topic: "a", Subscribe: true},
			{Topic: "b", Subscribe: true},
			{Topic: "a", Subscribe: false},
		}, subs)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription change not emitted")
	}

	assert.Empty(t, subscribersOf(n, "a"))
	assert.Equal(t, []types.PeerID{rp.id}, subscribersOf(n, "b"))
}

func TestPubSub_LocalSubscriptionBroadcast(t *testing.T) {
	n := newTestNode(t)
	rp := attachRawPeer(t, n)
	rpcs := rp.drain()

	require.NoError(t, n.ps.Subscribe("t"))
	require.NoError(t, n.ps.Subscribe("t"))
	require.NoError(t, n.ps.Unsubscribe("t"))
	require.NoError(t, n.ps.Unsubscribe("t"))

	var got []types.SubOpt
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case rpc := <-rpcs:
			for _, s := range rpc.Subscriptions {
				got = append(got, types.SubOpt{Topic: s.GetTopicID(), Subscribe: s.GetSubscribe()})
			}
		case <-timeout:
			t.Fatalf("expected two subscription deltas, got %v", got)
		}
	}

	// 重复的订阅与取消不会产生额外的变更
	assert.Equal(t, []types.SubOpt{{Topic: "t", Subscribe: true}, {Topic: "t", Subscribe: false}}, got)
	select {
	case rpc := <-rpcs:
		t.Fatalf("unexpected rpc: %+v", rpc)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPubSub_UnsubscribeRemovesHandlers(t *testing.T) {
	n := newTestNode(t, WithEmitSelf(true))

	var calls atomic.Int32
	require.NoError(t, n.ps.Subscribe("t", func(*interfaces.Message) { calls.Add(1) }))
	require.NoError(t, n.ps.Publish(context.Background(), "t", []byte("1")))
	require.NoError(t, n.ps.Unsubscribe("t"))
	require.NoError(t, n.ps.Subscribe("t"))
	require.NoError(t, n.ps.Publish(context.Background(), "t", []byte("2")))

	assert.Equal(t, int32(1), calls.Load())
}

// ============================================================================
//                              发布与投递
// ============================================================================

// emitSelf 下本地处理器对自己发布的消息恰好触发一次
func TestPubSub_EmitSelf(t *testing.T) {
	n := newTestNode(t, WithEmitSelf(true))

	var calls atomic.Int32
	var got atomic.Value
	require.NoError(t, n.ps.Subscribe("foo", func(msg *interfaces.Message) {
		calls.Add(1)
		got.Store(string(msg.Data))
	}))

	require.NoError(t, n.ps.Publish(context.Background(), "foo", []byte("hey")))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "hey", got.Load())
}

func TestPubSub_RestartDropsTopicHandlers(t *testing.T) {
	n := newTestNode(t, WithEmitSelf(true))
	ctx := context.Background()

	var before, after atomic.Int32
	require.NoError(t, n.ps.Subscribe("foo", func(*interfaces.Message) { before.Add(1) }))
	require.NoError(t, n.ps.Publish(ctx, "foo", []byte("one")))
	require.Equal(t, int32(1), before.Load())

	require.NoError(t, n.ps.Stop(ctx))
	require.NoError(t, n.ps.Start(ctx))

	topics, err := n.ps.GetTopics()
	require.NoError(t, err)
	assert.Empty(t, topics)

	require.NoError(t, n.ps.Subscribe("foo", func(*interfaces.Message) { after.Add(1) }))
	require.NoError(t, n.ps.Publish(ctx, "foo", []byte("two")))

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
}

func TestPubSub_NoEmitSelfByDefault(t *testing.T) {
	n := newTestNode(t)

	var calls atomic.Int32
	require.NoError(t, n.ps.Subscribe("foo", func(*interfaces.Message) { calls.Add(1) }))
	require.NoError(t, n.ps.Publish(context.Background(), "foo", []byte("hey")))
	assert.Zero(t, calls.Load())
}

func TestPubSub_PublishWithoutPeers(t *testing.T) {
	n := newTestNode(t)
	assert.NoError(t, n.ps.Publish(context.Background(), "lonely", nil))
}

func TestPubSub_PublishDelivered(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	received := make(chan *interfaces.Message, 1)
	require.NoError(t, b.ps.Subscribe("foo", func(msg *interfaces.Message) { received <- msg }))
	connectNodes(t, a, b)
	waitFor(t, func() bool { return containsPeer(subscribersOf(a, "foo"), b.id) })

	data := []byte("hello")
	require.NoError(t, a.ps.Publish(context.Background(), "foo", data))
	data[0] = 'j'

	select {
	case msg := <-received:
		assert.Equal(t, "hello", string(msg.Data))
		assert.Equal(t, a.id, msg.From)
		assert.Equal(t, a.id, msg.ReceivedFrom)
		assert.Len(t, msg.Seqno, 8)
		assert.NotEmpty(t, msg.Signature)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPubSub_PublishWireFormat(t *testing.T) {
	n := newTestNode(t)
	rp := attachRawPeer(t, n)
	rpcs := rp.drain()

	rp.subscribe(t, "t", true)
	waitFor(t, func() bool { return containsPeer(subscribersOf(n, "t"), rp.id) })

	require.NoError(t, n.ps.Publish(context.Background(), "t", []byte("payload")))

	verifier := newTestSigner(t, types.StrictSign, crypto.KeyTypeEd25519)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case rpc := <-rpcs:
			if len(rpc.Messages) == 0 {
				continue
			}
			require.Len(t, rpc.Messages, 1)
			wire := rpc.Messages[0]
			assert.Equal(t, []string{"t"}, wire.TopicIDs)
			assert.Equal(t, []byte(n.id), wire.From)

			msg, err := fromWireMessage(wire, n.id)
			require.NoError(t, err)
			assert.NoError(t, verifier.Validate(msg))
			return
		case <-timeout:
			t.Fatal("published message not received")
		}
	}
}

func TestPubSub_StrictNoSignEndToEnd(t *testing.T) {
	a := newTestNode(t, WithSignaturePolicy(types.StrictNoSign))
	b := newTestNode(t, WithSignaturePolicy(types.StrictNoSign))

	received := make(chan *interfaces.Message, 1)
	require.NoError(t, b.ps.Subscribe("anon", func(msg *interfaces.Message) { received <- msg }))
	connectNodes(t, a, b)
	waitFor(t, func() bool { return containsPeer(subscribersOf(a, "anon"), b.id) })

	require.NoError(t, a.ps.Publish(context.Background(), "anon", []byte("quiet")))

	select {
	case msg := <-received:
		assert.Equal(t, "quiet", string(msg.Data))
		assert.True(t, msg.From.IsEmpty())
		assert.Nil(t, msg.Seqno)
		assert.Nil(t, msg.Signature)
		assert.Equal(t, a.id, msg.ReceivedFrom)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

// StrictSign 下缺少签名的消息被丢弃
func TestPubSub_MissingSignatureDropped(t *testing.T) {
	n := newTestNode(t)

	var calls atomic.Int32
	require.NoError(t, n.ps.Subscribe("foo", func(*interfaces.Message) { calls.Add(1) }))

	rp := attachRawPeer(t, n)
	seqno := []byte{0, 0, 0, 0, 0, 0, 0, 9}
	rp.send(t, &pb.RPC{Messages: []*pb.Message{{
		From:     []byte(rp.id),
		Data:     []byte("unsigned"),
		Seqno:    seqno,
		TopicIDs: []string{"foo"},
	}}})

	waitFor(t, func() bool {
		_, rejected, _ := n.tracer.snapshot()
		return len(rejected) == 1
	})
	_, rejected, _ := n.tracer.snapshot()
	assert.ErrorIs(t, rejected[0], ErrMissingSignature)
	assert.Zero(t, calls.Load())

	err := n.ps.Validate(context.Background(), &interfaces.Message{
		From:  rp.id,
		Data:  []byte("unsigned"),
		Seqno: seqno,
		Topic: "foo",
	})
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestPubSub_TopicValidatorRejects(t *testing.T) {
	n := newTestNode(t, WithSignaturePolicy(types.StrictNoSign))

	received := make(chan string, 4)
	require.NoError(t, n.ps.Subscribe("t", func(msg *interfaces.Message) { received <- string(msg.Data) }))
	n.ps.RegisterTopicValidator("t", func(_ context.Context, _ string, msg *interfaces.Message) error {
		if string(msg.Data) == "spam" {
			return errors.New("spam")
		}
		return nil
	})

	rp := attachRawPeer(t, n)
	rp.send(t, &pb.RPC{Messages: []*pb.Message{unsignedMessage("t", "spam")}})
	rp.send(t, &pb.RPC{Messages: []*pb.Message{unsignedMessage("t", "ham")}})

	select {
	case data := <-received:
		assert.Equal(t, "ham", data)
	case <-time.After(5 * time.Second):
		t.Fatal("valid message not delivered")
	}
	waitFor(t, func() bool {
		_, rejected, _ := n.tracer.snapshot()
		return len(rejected) == 1 && errors.Is(rejected[0], ErrRejected)
	})

	n.ps.UnregisterTopicValidator("t")
	rp.send(t, &pb.RPC{Messages: []*pb.Message{unsignedMessage("t", "spam")}})
	select {
	case data := <-received:
		assert.Equal(t, "spam", data)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered after validator removed")
	}
}

func TestPubSub_NotSubscribedDropped(t *testing.T) {
	n := newTestNode(t, WithSignaturePolicy(types.StrictNoSign))
	rp := attachRawPeer(t, n)

	rp.send(t, &pb.RPC{Messages: []*pb.Message{unsignedMessage("elsewhere", "x")}})

	waitFor(t, func() bool { return hasDropReason(n, DropReasonNotSubscribed) })
	delivered, _, _ := n.tracer.snapshot()
	assert.Zero(t, delivered)
}

func TestPubSub_RelayUnsubscribedTopic(t *testing.T) {
	n := newTestNode(t, WithSignaturePolicy(types.StrictNoSign), WithCanRelayMessage(true))
	sender := attachRawPeer(t, n)
	listener := attachRawPeer(t, n)
	rpcs := listener.drain()

	listener.subscribe(t, "relay", true)
	waitFor(t, func() bool { return containsPeer(subscribersOf(n, "relay"), listener.id) })

	sender.send(t, &pb.RPC{Messages: []*pb.Message{unsignedMessage("relay", "pass it on")}})

	timeout := time.After(5 * time.Second)
	for {
		select {
		case rpc := <-rpcs:
			if len(rpc.Messages) == 0 {
				continue
			}
			assert.Equal(t, "pass it on", string(rpc.Messages[0].Data))
			delivered, _, _ := n.tracer.snapshot()
			assert.Equal(t, 1, delivered)
			return
		case <-timeout:
			t.Fatal("message not relayed")
		}
	}
}

func TestPubSub_BadTopicCountDropped(t *testing.T) {
	n := newTestNode(t, WithSignaturePolicy(types.StrictNoSign))
	require.NoError(t, n.ps.Subscribe("a"))
	rp := attachRawPeer(t, n)

	rp.send(t, &pb.RPC{Messages: []*pb.Message{{TopicIDs: []string{"a", "b"}, Data: []byte("x")}}})

	waitFor(t, func() bool { return hasDropReason(n, DropReasonBadTopics) })
	assert.Contains(t, n.ps.Peers(), rp.id)
}

func TestPubSub_DuplicateDropped(t *testing.T) {
	n := newTestNode(t, WithSignaturePolicy(types.StrictNoSign))

	var calls atomic.Int32
	require.NoError(t, n.ps.Subscribe("t", func(*interfaces.Message) { calls.Add(1) }))

	rp := attachRawPeer(t, n)
	rp.send(t, &pb.RPC{Messages: []*pb.Message{
		unsignedMessage("t", "same"),
		unsignedMessage("t", "same"),
	}})

	waitFor(t, func() bool { return hasDropReason(n, DropReasonDuplicate) })
	waitFor(t, func() bool { return calls.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPubSub_CustomMsgID(t *testing.T) {
	n := newTestNode(t,
		WithSignaturePolicy(types.StrictNoSign),
		WithMsgIDFn(func(msg *interfaces.Message) []byte { return []byte(msg.Topic) }),
	)
	assert.Equal(t, []byte("t"), n.ps.MsgID(&interfaces.Message{Topic: "t", Data: []byte("x")}))

	var calls atomic.Int32
	require.NoError(t, n.ps.Subscribe("t", func(*interfaces.Message) { calls.Add(1) }))

	rp := attachRawPeer(t, n)
	rp.send(t, &pb.RPC{Messages: []*pb.Message{unsignedMessage("t", "one")}})
	waitFor(t, func() bool { return calls.Load() == 1 })

	// 同主题的消息 ID 相同，被当作重复
	rp.send(t, &pb.RPC{Messages: []*pb.Message{unsignedMessage("t", "two")}})
	waitFor(t, func() bool { return hasDropReason(n, DropReasonDuplicate) })
	assert.Equal(t, int32(1), calls.Load())
}

func TestPubSub_AcceptFrom(t *testing.T) {
	var checks atomic.Int32
	n := newTestNode(t, WithAcceptFrom(func(types.PeerID) bool {
		checks.Add(1)
		return false
	}))
	rp := attachRawPeer(t, n)

	rp.subscribe(t, "x", true)
	rp.subscribe(t, "y", true)

	waitFor(t, func() bool { return checks.Load() == 2 })
	assert.Empty(t, subscribersOf(n, "x"))
	assert.Empty(t, subscribersOf(n, "y"))
}

// ============================================================================
//                              并发与背压
// ============================================================================

func TestPubSub_ProcessingConcurrencyCap(t *testing.T) {
	const limit = 2
	n := newTestNode(t,
		WithSignaturePolicy(types.StrictNoSign),
		WithMessageProcessingConcurrency(limit),
	)

	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	defer unblock()

	var delivered atomic.Int32
	require.NoError(t, n.ps.Subscribe("t", func(*interfaces.Message) { delivered.Add(1) }))
	n.ps.RegisterTopicValidator("t", func(ctx context.Context, _ string, _ *interfaces.Message) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	rp := attachRawPeer(t, n)
	msgs := make([]*pb.Message, 0, 10)
	for i := 0; i < 10; i++ {
		msgs = append(msgs, unsignedMessage("t", fmt.Sprintf("m-%d", i)))
	}
	rp.send(t, &pb.RPC{Messages: msgs})

	waitFor(t, func() bool { return n.ps.MaxInFlight() == limit })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(limit), n.ps.MaxInFlight())
	assert.Zero(t, delivered.Load())

	unblock()
	waitFor(t, func() bool { return delivered.Load() == 10 })
	assert.LessOrEqual(t, n.ps.MaxInFlight(), int64(limit))
}

// ============================================================================
//                              节点移除
// ============================================================================

func TestPubSub_DisconnectCleansUp(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	connectNodes(t, a, b)

	require.NoError(t, b.ps.Subscribe("foo"))
	waitFor(t, func() bool { return containsPeer(subscribersOf(a, "foo"), b.id) })
	assert.Contains(t, a.ps.Peers(), b.id)

	disconnectNodes(a, b)

	assert.NotContains(t, a.ps.Peers(), b.id)
	assert.Empty(t, subscribersOf(a, "foo"))
	a.ps.mu.RLock()
	assert.Empty(t, a.ps.topics)
	a.ps.mu.RUnlock()
}

func TestPubSub_DecodeErrorRemovesPeer(t *testing.T) {
	n := newTestNode(t)
	rp := attachRawPeer(t, n)

	rp.subscribe(t, "x", true)
	waitFor(t, func() bool { return containsPeer(subscribersOf(n, "x"), rp.id) })

	_, err := rp.out.Write(appendFrame(nil, []byte{0x0a, 0x7f}))
	require.NoError(t, err)

	waitFor(t, func() bool { return !containsPeer(n.ps.Peers(), rp.id) })
	assert.Empty(t, subscribersOf(n, "x"))
}

func TestPubSub_InboundEOFKeepsPeer(t *testing.T) {
	n := newTestNode(t)
	rp := attachRawPeer(t, n)

	rp.subscribe(t, "x", true)
	waitFor(t, func() bool { return containsPeer(subscribersOf(n, "x"), rp.id) })

	require.NoError(t, rp.out.Close())

	n.ps.mu.RLock()
	p := n.ps.peers[rp.id]
	n.ps.mu.RUnlock()
	require.NotNil(t, p)
	waitFor(t, func() bool { return !p.IsReadable() })

	assert.Contains(t, n.ps.Peers(), rp.id)
	assert.True(t, p.IsWritable())
}

func TestPubSub_StopClosesPeers(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.ps.Subscribe("t"))
	rp := attachRawPeer(t, n)
	rpcs := rp.drain()

	waitFor(t, func() bool { return len(n.ps.Peers()) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.ps.Stop(ctx))

	assert.Empty(t, n.ps.Peers())

	// 出站流写完后关闭，drain 结束
	timeout := time.After(5 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-rpcs:
		case <-timeout:
			t.Fatal("outbound stream not closed")
		}
	}

	// 入站流被重置
	waitFor(t, func() bool {
		_, err := rp.out.Write(appendFrame(nil, nil))
		return err != nil
	})

	require.NoError(t, n.ps.Start(ctx))
	topics, err := n.ps.GetTopics()
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestPubSub_ReconnectReplacesStreams(t *testing.T) {
	n := newTestNode(t, WithSignaturePolicy(types.StrictNoSign))
	first := attachRawPeer(t, n)
	first.subscribe(t, "x", true)
	waitFor(t, func() bool { return containsPeer(subscribersOf(n, "x"), first.id) })

	// 同一节点重新打开入站流，旧流被放弃
	local, remote := newStreamPair(protocolids.SysTestPubsub)
	n.reg.handler()(interfaces.IncomingStream{
		Protocol:   protocolids.SysTestPubsub,
		Stream:     local,
		Connection: &mockConnection{remote: first.id},
	})
	t.Cleanup(func() { _ = remote.Close() })

	waitFor(t, func() bool {
		_, err := first.out.Write(appendFrame(nil, nil))
		return err != nil
	})

	remote.writeRPC(t, &pb.RPC{Subscriptions: []*pb.SubOpts{pb.NewSubOpts("y", true)}})
	waitFor(t, func() bool { return containsPeer(subscribersOf(n, "y"), first.id) })

	// 订阅记录保留
	assert.Contains(t, subscribersOf(n, "x"), first.id)
	assert.Len(t, n.ps.Peers(), 1)
}
