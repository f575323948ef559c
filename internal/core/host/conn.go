package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/yamux"
	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ============================================================================
//                              连接
// ============================================================================

var _ interfaces.Connection = (*conn)(nil)

// conn 一条 yamux 会话，两端各持有一个 conn，共享连接 ID
type conn struct {
	id      string
	local   *Host
	remote  *Host
	session *yamux.Session

	// twin 对端持有的同一条连接
	twin *conn

	closeOnce sync.Once
	closeErr  error
}

func newConn(id string, local, remote *Host, session *yamux.Session) *conn {
	return &conn{
		id:      id,
		local:   local,
		remote:  remote,
		session: session,
	}
}

// RemotePeer 返回远端节点 ID
func (c *conn) RemotePeer() types.PeerID {
	return c.remote.id
}

// NewStream 打开新流并按顺序协商 protocols
func (c *conn) NewStream(ctx context.Context, protocols []string) (interfaces.Stream, string, error) {
	if len(protocols) == 0 {
		return nil, "", ErrNoProtocols
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	ys, err := c.session.OpenStream()
	if err != nil {
		return nil, "", fmt.Errorf("open stream: %w", err)
	}

	deadline := time.Now().Add(c.local.cfg.NegotiationTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ys.SetDeadline(deadline); err != nil {
		_ = ys.Close()
		return nil, "", fmt.Errorf("set deadline: %w", err)
	}

	// ctx 取消时让协商中的读写立即失败
	stop := context.AfterFunc(ctx, func() {
		_ = ys.SetDeadline(time.Now())
	})

	proto, err := mss.SelectOneOf(protocols, ys)
	if !stop() {
		_ = ys.Close()
		return nil, "", ctx.Err()
	}
	if err != nil {
		_ = ys.Close()
		return nil, "", fmt.Errorf("protocol negotiation failed: %w", err)
	}

	_ = ys.SetDeadline(time.Time{}) // 清除超时
	return newStream(ys, proto), proto, nil
}

// Close 关闭会话并从本端主机移除
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
		c.local.removeConn(c)
	})
	return c.closeErr
}

// acceptLoop 接受入站流，会话结束时关闭连接
func (c *conn) acceptLoop() {
	defer c.Close()

	for {
		ys, err := c.session.AcceptStream()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, yamux.ErrSessionShutdown) {
				log.Debug("接受流失败", "host", c.local.id.ShortString(), "err", err)
			}
			return
		}
		go c.handleInbound(ys)
	}
}

// handleInbound 服务端协商并路由到处理器
func (c *conn) handleInbound(ys *yamux.Stream) {
	if c.local.closed.Load() {
		_ = ys.Close()
		return
	}

	_ = ys.SetDeadline(time.Now().Add(c.local.cfg.NegotiationTimeout))

	proto, _, err := c.local.mux.Negotiate(ys)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Debug("协议协商失败", "remotePeer", c.remote.id.ShortString(), "err", err)
		}
		_ = newStream(ys, "").Reset()
		return
	}
	_ = ys.SetDeadline(time.Time{})

	// 协商和查找之间处理器可能已被注销
	handler := c.local.handlerFor(proto)
	if handler == nil {
		log.Debug("协议没有处理器", "protocol", proto)
		_ = newStream(ys, proto).Reset()
		return
	}

	handler(interfaces.IncomingStream{
		Protocol:   proto,
		Stream:     newStream(ys, proto),
		Connection: c,
	})
}

// ============================================================================
//                              流
// ============================================================================

var _ interfaces.Stream = (*stream)(nil)

// stream 协商完成的 yamux 流
type stream struct {
	*yamux.Stream
	protocol string
	closed   atomic.Bool
}

func newStream(ys *yamux.Stream, protocol string) *stream {
	return &stream{Stream: ys, protocol: protocol}
}

// Protocol 返回协商得到的协议
func (s *stream) Protocol() string {
	return s.protocol
}

// Close 关闭写方向，对端读到 EOF。重复调用安全。
func (s *stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.Stream.Close()
}

// Reset 中止流
//
// yamux 流没有 RST 语义：先让本端阻塞中的读立即返回，再关闭。
func (s *stream) Reset() error {
	_ = s.Stream.SetReadDeadline(time.Now())
	return s.Close()
}
