package pubsub

import (
	"bytes"
	"context"
	"sync"

	"github.com/dep2p/go-dep2p-pubsub/internal/util/logger"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

var streamLog = logger.Logger("pubsub.peerstreams")

// ============================================================================
//                              PeerStreams
// ============================================================================

// PeerStreams 一个远端节点的入站/出站流
//
// 每个方向最多一条活跃流，后附加的流替换之前的流。
type PeerStreams struct {
	id           types.PeerID
	protocol     string
	maxFrameSize int
	onClose      func(*PeerStreams)

	mu       sync.Mutex
	inbound  *InboundStream
	outbound *outboundQueue
	closed   bool

	closeOnce sync.Once
}

// NewPeerStreams 创建 PeerStreams
//
// onClose 在 Close 时调用且只调用一次，可以为 nil。
func NewPeerStreams(id types.PeerID, protocol string, maxFrameSize int, onClose func(*PeerStreams)) *PeerStreams {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxMessageSize
	}
	return &PeerStreams{
		id:           id,
		protocol:     protocol,
		maxFrameSize: maxFrameSize,
		onClose:      onClose,
	}
}

// ID 远端节点 ID
func (p *PeerStreams) ID() types.PeerID {
	return p.id
}

// Protocol 协商出的协议
func (p *PeerStreams) Protocol() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.protocol
}

// IsReadable 是否有入站流
func (p *PeerStreams) IsReadable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inbound != nil
}

// IsWritable 是否有出站流
func (p *PeerStreams) IsWritable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbound != nil
}

// IsClosed 是否已关闭
func (p *PeerStreams) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// AttachInboundStream 附加入站流，返回其帧序列
//
// 之前的入站流被放弃，不再读取其中剩余的数据。
func (p *PeerStreams) AttachInboundStream(raw interfaces.Stream) (*InboundStream, error) {
	in := newInboundStream(raw, p.maxFrameSize)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		in.abandon()
		return nil, ErrStreamsClosed
	}
	old := p.inbound
	p.inbound = in
	p.mu.Unlock()

	if old != nil {
		streamLog.Debug("替换入站流", "peer", p.id.ShortString())
		old.abandon()
	}
	return in, nil
}

// AttachOutboundStream 附加出站流
//
// 之前的出站流被关闭，尚未写出的数据丢弃。
func (p *PeerStreams) AttachOutboundStream(raw interfaces.Stream) error {
	out := newOutboundQueue(raw)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = raw.Reset()
		return ErrStreamsClosed
	}
	old := p.outbound
	p.outbound = out
	if proto := raw.Protocol(); proto != "" {
		p.protocol = proto
	}
	p.mu.Unlock()

	if old != nil {
		if dropped := old.abort(); dropped > 0 {
			streamLog.Debug("替换出站流，丢弃未写出的帧", "peer", p.id.ShortString(), "dropped", dropped)
		}
	}

	go out.run(func(err error) { p.onWriteError(out, err) })
	return nil
}

// Write 写入一帧，自动加长度前缀
//
// 没有出站流时只记录日志，不返回错误。
func (p *PeerStreams) Write(payload []byte) {
	if len(payload) > p.maxFrameSize {
		streamLog.Warn("帧超过大小上限，跳过写入", "peer", p.id.ShortString(), "size", len(payload), "max", p.maxFrameSize)
		return
	}

	p.mu.Lock()
	out := p.outbound
	p.mu.Unlock()

	if out == nil || !out.push(appendFrame(nil, payload)) {
		streamLog.Debug("没有可写的出站流，跳过写入", "peer", p.id.ShortString(), "err", ErrNoWritableStream)
	}
}

// Close 关闭入站和出站流，只生效一次
func (p *PeerStreams) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		in, out := p.inbound, p.outbound
		p.inbound, p.outbound = nil, nil
		p.mu.Unlock()

		if in != nil {
			in.abandon()
		}
		if out != nil {
			out.end()
		}

		streamLog.Debug("关闭 PeerStreams", "peer", p.id.ShortString())
		if p.onClose != nil {
			p.onClose(p)
		}
	})
}

// detachInbound 入站流正常结束后摘除，已被替换时不处理
func (p *PeerStreams) detachInbound(in *InboundStream) {
	p.mu.Lock()
	if p.inbound == in {
		p.inbound = nil
	}
	p.mu.Unlock()
}

// onWriteError 出站写失败时关闭整个 PeerStreams，已被替换的流不处理
func (p *PeerStreams) onWriteError(out *outboundQueue, err error) {
	p.mu.Lock()
	current := p.outbound == out
	p.mu.Unlock()
	if !current {
		return
	}
	streamLog.Debug("出站写入失败", "peer", p.id.ShortString(), "err", err)
	p.Close()
}

// ============================================================================
//                              入站流
// ============================================================================

// InboundStream 入站流的帧序列
type InboundStream struct {
	raw    interfaces.Stream
	reader *frameReader
	ctx    context.Context
	cancel context.CancelFunc
}

func newInboundStream(raw interfaces.Stream, maxFrameSize int) *InboundStream {
	ctx, cancel := context.WithCancel(context.Background())
	// 取消时 Reset 底层流以解除阻塞的 Read
	context.AfterFunc(ctx, func() { _ = raw.Reset() })
	return &InboundStream{
		raw:    raw,
		reader: newFrameReader(raw, maxFrameSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Next 读取下一帧
//
// 流被放弃后返回 ErrStreamAbandoned，远端正常关闭返回 io.EOF。
func (in *InboundStream) Next() ([]byte, error) {
	if in.ctx.Err() != nil {
		return nil, ErrStreamAbandoned
	}
	frame, err := in.reader.Next()
	if err != nil {
		if in.ctx.Err() != nil {
			return nil, ErrStreamAbandoned
		}
		return nil, err
	}
	return frame, nil
}

// Done 流被放弃时关闭
func (in *InboundStream) Done() <-chan struct{} {
	return in.ctx.Done()
}

func (in *InboundStream) abandon() {
	in.cancel()
}

// ============================================================================
//                              出站队列
// ============================================================================

// outboundQueue 无界 FIFO，由单个写 goroutine 写出
type outboundQueue struct {
	raw interfaces.Stream

	mu      sync.Mutex
	cond    *sync.Cond
	pending [][]byte
	ended   bool
	aborted bool

	done chan struct{}
}

func newOutboundQueue(raw interfaces.Stream) *outboundQueue {
	q := &outboundQueue{
		raw:  raw,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push 入队，队列已结束时返回 false
func (q *outboundQueue) push(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ended || q.aborted {
		return false
	}
	q.pending = append(q.pending, frame)
	q.cond.Signal()
	return true
}

// end 写完剩余数据后关闭流
func (q *outboundQueue) end() {
	q.mu.Lock()
	q.ended = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// abort 丢弃未写出的数据并重置流，返回丢弃的帧数
func (q *outboundQueue) abort() int {
	q.mu.Lock()
	if q.aborted {
		q.mu.Unlock()
		return 0
	}
	q.aborted = true
	dropped := len(q.pending)
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	_ = q.raw.Reset()
	return dropped
}

func (q *outboundQueue) isAborted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.aborted
}

// run 写循环，onError 只在非 abort 导致的写失败时调用
func (q *outboundQueue) run(onError func(error)) {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.ended && !q.aborted {
			q.cond.Wait()
		}
		if q.aborted {
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 && q.ended {
			q.mu.Unlock()
			_ = q.raw.Close()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		if _, err := q.raw.Write(bytes.Join(batch, nil)); err != nil {
			_ = q.raw.Reset()
			if !q.isAborted() {
				onError(err)
			}
			return
		}
	}
}
