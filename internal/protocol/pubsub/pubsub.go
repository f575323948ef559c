package pubsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/dep2p/go-dep2p-pubsub/internal/util/logger"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
	pb "github.com/dep2p/go-dep2p-pubsub/pkg/lib/proto/pubsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("pubsub")

// PubSub 发布订阅核心
//
// 管理每个远端节点的 PeerStreams、远端订阅索引和本地订阅集合；
// 转发策略由 Router 决定。
type PubSub struct {
	cfg        *Config
	registrar  interfaces.Registrar
	router     interfaces.Router
	signer     *signer
	codec      RPCCodec
	tracer     Tracer
	validators *topicValidators
	handlers   *handlerRegistry

	// lifecycleMu 串行化 Start/Stop
	lifecycleMu sync.Mutex
	run         atomic.Pointer[runState]
	readers     sync.WaitGroup

	// mu 同时保护 peers、topics、subscriptions
	mu            sync.RWMutex
	peers         map[types.PeerID]*PeerStreams
	topics        map[string]map[types.PeerID]struct{}
	subscriptions map[string]struct{}
}

// runState 一次 Start 到 Stop 之间的运行状态
type runState struct {
	ctx        context.Context
	cancel     context.CancelFunc
	queue      *messageQueue
	handlerID  string
	topologyID string
}

// 确保 PubSub 实现了 interfaces.PubSub 接口
var _ interfaces.PubSub = (*PubSub)(nil)

// New 创建 PubSub
//
// 参数：
//   - registrar: 提供流处理和连接通知的外部协作方
//   - router: 转发策略，nil 时返回 ErrConfiguration
//   - priv: 节点私钥，决定节点 ID 和 StrictSign 签名
//   - opts: 配置选项，至少需要一个多编解码器
//
// 返回：
//   - *PubSub: 未启动的服务，需调用 Start
//   - error: 配置无效时返回 ErrConfiguration
func New(registrar interfaces.Registrar, router interfaces.Router, priv crypto.PrivateKey, opts ...Option) (*PubSub, error) {
	if registrar == nil {
		return nil, ErrNilRegistrar
	}
	if router == nil {
		return nil, ErrNilRouter
	}
	if priv == nil {
		return nil, ErrNilPrivateKey
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := newSigner(cfg.SignaturePolicy, priv, cfg.PublicKeyCacheSize)
	if err != nil {
		return nil, err
	}

	ps := &PubSub{
		cfg:           cfg,
		registrar:     registrar,
		router:        router,
		signer:        s,
		codec:         cfg.Codec,
		tracer:        cfg.Tracer,
		validators:    newTopicValidators(),
		handlers:      newHandlerRegistry(),
		peers:         make(map[types.PeerID]*PeerStreams),
		topics:        make(map[string]map[types.PeerID]struct{}),
		subscriptions: make(map[string]struct{}),
	}
	if ps.codec == nil {
		ps.codec = ProtoCodec()
	}
	if ps.tracer == nil {
		ps.tracer = noopTracer{}
	}
	return ps, nil
}

// ID 本地节点 ID
func (ps *PubSub) ID() types.PeerID {
	return ps.signer.self
}

// Config 返回配置
func (ps *PubSub) Config() Config {
	return *ps.cfg
}

// IsStarted 是否已启动
func (ps *PubSub) IsStarted() bool {
	return ps.run.Load() != nil
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 注册流处理器和拓扑，已启动时直接返回
func (ps *PubSub) Start(_ context.Context) error {
	ps.lifecycleMu.Lock()
	defer ps.lifecycleMu.Unlock()

	if ps.run.Load() != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &runState{
		ctx:    ctx,
		cancel: cancel,
		queue:  newMessageQueue(ps.cfg.MessageProcessingConcurrency, ps.cfg.MessageQueueSize, ps.tracer.InFlight),
	}
	ps.run.Store(rt)

	handlerID, err := ps.registrar.Handle(ps.cfg.Multicodecs, ps.onIncomingStream)
	if err != nil {
		ps.abortStart(rt)
		return fmt.Errorf("pubsub: register stream handler: %w", err)
	}
	rt.handlerID = handlerID

	topologyID, err := ps.registrar.Register(&interfaces.Topology{
		Multicodecs:  ps.cfg.Multicodecs,
		OnConnect:    ps.onPeerConnected,
		OnDisconnect: ps.onPeerDisconnected,
	})
	if err != nil {
		_ = ps.registrar.Unregister(handlerID)
		ps.abortStart(rt)
		return fmt.Errorf("pubsub: register topology: %w", err)
	}
	rt.topologyID = topologyID

	log.Info("pubsub 服务启动",
		"peer", ps.ID().ShortString(),
		"protocols", ps.cfg.Multicodecs,
		"policy", ps.cfg.SignaturePolicy.String())
	return nil
}

func (ps *PubSub) abortStart(rt *runState) {
	ps.run.Store(nil)
	_ = rt.queue.Close(context.Background())
	rt.cancel()
}

// Stop 注销处理器，关闭全部 PeerStreams，已停止时直接返回
//
// 订阅和主题处理器随之清空，重新启动后需要再次 Subscribe；
// 主题验证器和订阅变更监听器保留。
// 正在验证的消息不会被强制取消，等待时间受 ctx 限制。
func (ps *PubSub) Stop(ctx context.Context) error {
	ps.lifecycleMu.Lock()
	defer ps.lifecycleMu.Unlock()

	rt := ps.run.Swap(nil)
	if rt == nil {
		return nil
	}

	err := multierr.Combine(
		ps.registrar.Unregister(rt.handlerID),
		ps.registrar.Unregister(rt.topologyID),
	)

	ps.mu.Lock()
	peers := ps.peers
	ps.peers = make(map[types.PeerID]*PeerStreams)
	ps.topics = make(map[string]map[types.PeerID]struct{})
	ps.subscriptions = make(map[string]struct{})
	ps.mu.Unlock()
	ps.handlers.clearTopics()

	for id, p := range peers {
		p.Close()
		ps.tracer.RemovePeer(id)
	}

	err = multierr.Append(err, rt.queue.Close(ctx))
	rt.cancel()
	err = multierr.Append(err, waitContext(ctx, &ps.readers))

	log.Info("pubsub 服务停止", "peer", ps.ID().ShortString(), "peers", len(peers))
	return err
}

// waitContext 等待 wg，受 ctx 限制
func waitContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
//                              Registrar 回调
// ============================================================================

// onIncomingStream 远端打开的入站流
func (ps *PubSub) onIncomingStream(in interfaces.IncomingStream) {
	rt := ps.run.Load()
	if rt == nil {
		_ = in.Stream.Reset()
		return
	}
	peer := in.Connection.RemotePeer()

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.run.Load() != rt {
		_ = in.Stream.Reset()
		return
	}
	p := ps.addPeerLocked(peer, in.Protocol)
	inbound, err := p.AttachInboundStream(in.Stream)
	if err != nil {
		log.Debug("附加入站流失败", "peer", peer.ShortString(), "err", err)
		return
	}

	ps.readers.Add(1)
	go ps.processMessages(rt, peer, inbound, p)
}

// onPeerConnected 打开出站流并发送完整的本地订阅集合
func (ps *PubSub) onPeerConnected(peer types.PeerID, conn interfaces.Connection) {
	rt := ps.run.Load()
	if rt == nil {
		return
	}

	ctx, cancel := context.WithTimeout(rt.ctx, ps.cfg.NewStreamTimeout)
	defer cancel()

	stream, protocol, err := conn.NewStream(ctx, ps.cfg.Multicodecs)
	if err != nil {
		log.Debug("打开出站流失败", "peer", peer.ShortString(), "err", err)
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.run.Load() != rt {
		_ = stream.Reset()
		return
	}
	p := ps.addPeerLocked(peer, protocol)
	if err := p.AttachOutboundStream(stream); err != nil {
		log.Debug("附加出站流失败", "peer", peer.ShortString(), "err", err)
		return
	}

	if len(ps.subscriptions) == 0 {
		return
	}
	subs := make([]types.SubOpt, 0, len(ps.subscriptions))
	for topic := range ps.subscriptions {
		subs = append(subs, types.SubOpt{Topic: topic, Subscribe: true})
	}
	ps.sendSubscriptions(p, subs)
}

// onPeerDisconnected 移除节点及其订阅记录
func (ps *PubSub) onPeerDisconnected(peer types.PeerID) {
	ps.removePeer(peer, nil)
}

// ============================================================================
//                              节点管理
// ============================================================================

// addPeerLocked 获取或创建 PeerStreams，调用方持有 mu
//
// 已关闭但尚未移除的实例会被替换。
func (ps *PubSub) addPeerLocked(peer types.PeerID, protocol string) *PeerStreams {
	if p, ok := ps.peers[peer]; ok {
		if !p.IsClosed() {
			return p
		}
		ps.removePeerLocked(peer)
		ps.tracer.RemovePeer(peer)
	}
	p := NewPeerStreams(peer, protocol, ps.cfg.MaxMessageSize, ps.onPeerStreamsClosed)
	ps.peers[peer] = p

	ps.tracer.AddPeer(peer, protocol)
	log.Debug("添加节点", "peer", peer.ShortString(), "protocol", protocol)
	return p
}

// removePeer 移除节点
//
// expected 非 nil 时只在 peers 中仍是同一实例时移除。
func (ps *PubSub) removePeer(peer types.PeerID, expected *PeerStreams) {
	ps.mu.Lock()
	p, ok := ps.peers[peer]
	if !ok || (expected != nil && p != expected) {
		ps.mu.Unlock()
		return
	}
	ps.removePeerLocked(peer)
	ps.mu.Unlock()

	p.Close()
	ps.tracer.RemovePeer(peer)
	log.Debug("移除节点", "peer", peer.ShortString())
}

// removePeerLocked 从 peers 和每个主题的节点集合中删除节点，集合为空时删除主题
func (ps *PubSub) removePeerLocked(peer types.PeerID) {
	delete(ps.peers, peer)
	for topic, set := range ps.topics {
		delete(set, peer)
		if len(set) == 0 {
			delete(ps.topics, topic)
		}
	}
}

func (ps *PubSub) onPeerStreamsClosed(p *PeerStreams) {
	ps.removePeer(p.ID(), p)
}

// ============================================================================
//                              入站处理
// ============================================================================

// processMessages 顺序读取一个节点的入站帧
//
// 被替换的读循环静默退出；远端正常关闭只结束读循环；
// 解码或流错误移除该节点。
func (ps *PubSub) processMessages(rt *runState, peer types.PeerID, in *InboundStream, p *PeerStreams) {
	defer ps.readers.Done()

	for {
		frame, err := in.Next()
		if err != nil {
			switch {
			case errors.Is(err, ErrStreamAbandoned):
			case errors.Is(err, io.EOF):
				log.Debug("入站流结束", "peer", peer.ShortString())
				p.detachInbound(in)
			default:
				log.Debug("读取入站流失败", "peer", peer.ShortString(), "err", err)
				ps.removePeer(peer, p)
			}
			return
		}

		rpc, err := ps.codec.DecodeRPC(frame)
		if err != nil {
			log.Warn("解码 RPC 失败", "peer", peer.ShortString(), "err", err)
			ps.removePeer(peer, p)
			return
		}

		ps.processRPC(rt, peer, p, rpc)
	}
}

// processRPC 处理一个 RPC
//
// 订阅变更按顺序同步应用，之后消息逐条提交到处理队列。
func (ps *PubSub) processRPC(rt *runState, from types.PeerID, p *PeerStreams, rpc *pb.RPC) {
	if ps.cfg.AcceptFrom != nil && !ps.cfg.AcceptFrom(from) {
		log.Debug("拒绝来自节点的 RPC", "peer", from.ShortString())
		return
	}

	if len(rpc.Subscriptions) > 0 {
		subs := ps.applySubscriptions(from, p, rpc.Subscriptions)
		if len(subs) > 0 {
			ps.handlers.emitSubscriptionChange(from, subs)
		}
	}

	for _, m := range rpc.Messages {
		msg, err := fromWireMessage(m, from)
		if err != nil {
			log.Debug("丢弃消息", "peer", from.ShortString(), "err", err)
			ps.tracer.DropMessage(&interfaces.Message{ReceivedFrom: from, Data: m.Data}, DropReasonBadTopics)
			continue
		}

		if err := rt.queue.Submit(rt.ctx, func() { ps.processMessage(rt.ctx, msg) }); err != nil {
			ps.tracer.DropMessage(msg, DropReasonQueueClosed)
			return
		}
	}
}

// applySubscriptions 应用远端订阅变更
//
// 节点已被移除时不记录，避免残留。
func (ps *PubSub) applySubscriptions(from types.PeerID, p *PeerStreams, opts []*pb.SubOpts) []types.SubOpt {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.peers[from] != p {
		return nil
	}

	subs := make([]types.SubOpt, 0, len(opts))
	for _, opt := range opts {
		topic := opt.GetTopicID()
		if topic == "" {
			continue
		}

		if opt.GetSubscribe() {
			set, ok := ps.topics[topic]
			if !ok {
				set = make(map[types.PeerID]struct{})
				ps.topics[topic] = set
			}
			set[from] = struct{}{}
		} else if set, ok := ps.topics[topic]; ok {
			delete(set, from)
			if len(set) == 0 {
				delete(ps.topics, topic)
			}
		}

		subs = append(subs, types.SubOpt{Topic: topic, Subscribe: opt.GetSubscribe()})
	}
	return subs
}

// processMessage 队列任务：过滤、验证、本地投递、转发
func (ps *PubSub) processMessage(ctx context.Context, msg *interfaces.Message) {
	subscribed := ps.isSubscribed(msg.Topic)
	if !subscribed && !ps.cfg.CanRelayMessage {
		ps.tracer.DropMessage(msg, DropReasonNotSubscribed)
		return
	}

	seen, dedup := ps.router.(interfaces.SeenFilter)
	var id []byte
	if dedup {
		id = ps.MsgID(msg)
		if seen.Seen(id) {
			ps.tracer.DropMessage(msg, DropReasonDuplicate)
			return
		}
	}

	ps.tracer.ValidateMessage(msg)
	if err := ps.Validate(ctx, msg); err != nil {
		log.Debug("消息验证失败",
			"peer", msg.ReceivedFrom.ShortString(),
			"topic", msg.Topic,
			"err", err)
		ps.tracer.RejectMessage(msg, err)
		return
	}
	if dedup && !seen.MarkSeen(id) {
		ps.tracer.DropMessage(msg, DropReasonDuplicate)
		return
	}
	ps.tracer.DeliverMessage(msg)

	if subscribed && (ps.cfg.EmitSelf || !ps.signer.isSelf(msg)) {
		ps.handlers.emitMessage(msg)
	}

	if err := ps.router.Forward(ctx, msg, routeView{ps}); err != nil {
		log.Debug("转发消息失败", "topic", msg.Topic, "err", err)
	}
}

// ============================================================================
//                              公共 API
// ============================================================================

// Publish 发布消息
//
// 没有感兴趣的节点时也返回成功，由 Router 决定发送对象。
func (ps *PubSub) Publish(ctx context.Context, topic string, data []byte) error {
	if !ps.IsStarted() {
		return ErrNotStarted
	}
	if topic == "" {
		return ErrInvalidTopic
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	msg := &interfaces.Message{
		Data:         payload,
		Topic:        topic,
		ReceivedFrom: ps.ID(),
	}
	if err := ps.signer.BuildMessage(msg); err != nil {
		return fmt.Errorf("pubsub: build message: %w", err)
	}
	if seen, ok := ps.router.(interfaces.SeenFilter); ok {
		seen.MarkSeen(ps.MsgID(msg))
	}

	if ps.cfg.EmitSelf && ps.isSubscribed(topic) {
		ps.handlers.emitMessage(msg)
	}

	return ps.router.Forward(ctx, msg, routeView{ps})
}

// Subscribe 订阅主题
//
// handlers 追加到主题处理器；首次订阅时通知所有已连接节点。
func (ps *PubSub) Subscribe(topic string, handlers ...interfaces.MessageHandler) error {
	if !ps.IsStarted() {
		return ErrNotStarted
	}
	if topic == "" {
		return ErrInvalidTopic
	}

	for _, h := range handlers {
		if h != nil {
			ps.handlers.addTopic(topic, h)
		}
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.subscriptions[topic]; ok {
		return nil
	}
	ps.subscriptions[topic] = struct{}{}
	ps.broadcastSubscription(types.SubOpt{Topic: topic, Subscribe: true})

	log.Debug("订阅主题", "topic", topic)
	return nil
}

// Unsubscribe 取消订阅并移除主题处理器
func (ps *PubSub) Unsubscribe(topic string) error {
	if !ps.IsStarted() {
		return ErrNotStarted
	}
	if topic == "" {
		return ErrInvalidTopic
	}

	ps.handlers.removeTopic(topic)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.subscriptions[topic]; !ok {
		return nil
	}
	delete(ps.subscriptions, topic)
	ps.broadcastSubscription(types.SubOpt{Topic: topic, Subscribe: false})

	log.Debug("取消订阅主题", "topic", topic)
	return nil
}

// GetTopics 返回本地订阅的主题，按字典序
func (ps *PubSub) GetTopics() ([]string, error) {
	if !ps.IsStarted() {
		return nil, ErrNotStarted
	}
	return ps.subscriptionList(), nil
}

// GetSubscribers 返回订阅了 topic 的远端节点
func (ps *PubSub) GetSubscribers(topic string) ([]types.PeerID, error) {
	if !ps.IsStarted() {
		return nil, ErrNotStarted
	}
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	return ps.subscribers(topic), nil
}

// Peers 返回当前有 PeerStreams 的节点
func (ps *PubSub) Peers() []types.PeerID {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]types.PeerID, 0, len(ps.peers))
	for id := range ps.peers {
		peers = append(peers, id)
	}
	sortPeers(peers)
	return peers
}

// Validate 按签名策略和主题验证器校验消息
func (ps *PubSub) Validate(ctx context.Context, msg *interfaces.Message) error {
	if err := ps.signer.Validate(msg); err != nil {
		return err
	}
	return ps.validators.Validate(ctx, msg)
}

// MsgID 计算消息 ID
func (ps *PubSub) MsgID(msg *interfaces.Message) []byte {
	if ps.cfg.MsgIDFn != nil {
		return ps.cfg.MsgIDFn(msg)
	}
	return ps.signer.MsgID(msg)
}

// AddTopicHandler 追加主题处理器，不改变订阅状态
func (ps *PubSub) AddTopicHandler(topic string, handler interfaces.MessageHandler) func() {
	return ps.handlers.addTopic(topic, handler)
}

// OnSubscriptionChange 监听远端订阅变更
func (ps *PubSub) OnSubscriptionChange(handler interfaces.SubscriptionChangeHandler) func() {
	return ps.handlers.addSubChange(handler)
}

// RegisterTopicValidator 注册主题验证器
func (ps *PubSub) RegisterTopicValidator(topic string, validator interfaces.TopicValidator) {
	ps.validators.Register(topic, validator)
}

// UnregisterTopicValidator 注销主题验证器
func (ps *PubSub) UnregisterTopicValidator(topic string) {
	ps.validators.Unregister(topic)
}

// MaxInFlight 本次运行中观测到的最大并发验证数，未启动时为 0
func (ps *PubSub) MaxInFlight() int64 {
	rt := ps.run.Load()
	if rt == nil {
		return 0
	}
	return rt.queue.MaxInFlight()
}

// ============================================================================
//                              内部方法
// ============================================================================

func (ps *PubSub) isSubscribed(topic string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.subscriptions[topic]
	return ok
}

func (ps *PubSub) subscriptionList() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	topics := make([]string, 0, len(ps.subscriptions))
	for topic := range ps.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (ps *PubSub) subscribers(topic string) []types.PeerID {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	set := ps.topics[topic]
	peers := make([]types.PeerID, 0, len(set))
	for id := range set {
		peers = append(peers, id)
	}
	sortPeers(peers)
	return peers
}

// broadcastSubscription 通知所有已连接节点，调用方持有 mu
func (ps *PubSub) broadcastSubscription(sub types.SubOpt) {
	if len(ps.peers) == 0 {
		return
	}
	frame, err := encodeSubscriptions(ps.codec, sub)
	if err != nil {
		log.Warn("编码订阅变更失败", "topic", sub.Topic, "err", err)
		return
	}
	for _, p := range ps.peers {
		p.Write(frame)
	}
}

// sendSubscriptions 向单个节点发送订阅集合
func (ps *PubSub) sendSubscriptions(p *PeerStreams, subs []types.SubOpt) {
	frame, err := encodeSubscriptions(ps.codec, subs...)
	if err != nil {
		log.Warn("编码订阅集合失败", "peer", p.ID().ShortString(), "err", err)
		return
	}
	p.Write(frame)
}

// send 向单个节点发送消息，节点不存在时跳过
func (ps *PubSub) send(peer types.PeerID, msg *interfaces.Message) {
	ps.mu.RLock()
	p := ps.peers[peer]
	ps.mu.RUnlock()
	if p == nil {
		log.Debug("节点不存在，跳过发送", "peer", peer.ShortString())
		return
	}

	frame, err := encodeMessage(ps.codec, msg)
	if err != nil {
		log.Warn("编码消息失败", "peer", peer.ShortString(), "err", err)
		return
	}
	p.Write(frame)
}

func sortPeers(peers []types.PeerID) {
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
}

// ============================================================================
//                              RouteView
// ============================================================================

// routeView Router 可见的核心层状态
type routeView struct {
	ps *PubSub
}

func (v routeView) Self() types.PeerID {
	return v.ps.ID()
}

func (v routeView) Subscriptions() []string {
	return v.ps.subscriptionList()
}

func (v routeView) Peers() []types.PeerID {
	return v.ps.Peers()
}

func (v routeView) Subscribers(topic string) []types.PeerID {
	return v.ps.subscribers(topic)
}

func (v routeView) Send(peer types.PeerID, msg *interfaces.Message) {
	v.ps.send(peer, msg)
}
