package pubsub

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-pubsub/pkg/protocolids"
)

const testProto = protocolids.SysTestPubsub

func newTestPeerStreams(onClose func(*PeerStreams)) *PeerStreams {
	return NewPeerStreams("peer-1", testProto, 1024, onClose)
}

func readFrame(t *testing.T, fr *frameReader) string {
	t.Helper()
	frame, err := fr.Next()
	require.NoError(t, err)
	return string(frame)
}

// ============================================================================
//                              出站
// ============================================================================

func TestPeerStreams_WriteFIFO(t *testing.T) {
	p := newTestPeerStreams(nil)
	local, remote := newStreamPair(testProto)
	require.NoError(t, p.AttachOutboundStream(local))
	assert.True(t, p.IsWritable())

	p.Write([]byte("a"))
	p.Write([]byte("b"))
	p.Write([]byte("c"))

	fr := newFrameReader(remote, 1024)
	assert.Equal(t, "a", readFrame(t, fr))
	assert.Equal(t, "b", readFrame(t, fr))
	assert.Equal(t, "c", readFrame(t, fr))
}

func TestPeerStreams_WriteWithoutOutbound(t *testing.T) {
	p := newTestPeerStreams(nil)
	assert.False(t, p.IsWritable())
	assert.NotPanics(t, func() { p.Write([]byte("dropped")) })
}

func TestPeerStreams_WriteOversizedSkipped(t *testing.T) {
	p := NewPeerStreams("peer-1", testProto, 4, nil)
	local, remote := newStreamPair(testProto)
	require.NoError(t, p.AttachOutboundStream(local))

	p.Write([]byte("too large"))
	p.Write([]byte("ok"))

	fr := newFrameReader(remote, 1024)
	assert.Equal(t, "ok", readFrame(t, fr))
	assert.False(t, p.IsClosed())
}

func TestPeerStreams_OutboundSupersede(t *testing.T) {
	p := newTestPeerStreams(nil)

	first, firstRemote := newStreamPair(testProto)
	require.NoError(t, p.AttachOutboundStream(first))
	// firstRemote 不读取，写 goroutine 阻塞在第一帧
	p.Write([]byte("stale"))

	second, secondRemote := newStreamPair(testProto)
	require.NoError(t, p.AttachOutboundStream(second))
	assert.GreaterOrEqual(t, first.resets.Load(), int32(1))

	p.Write([]byte("fresh"))
	fr := newFrameReader(secondRemote, 1024)
	assert.Equal(t, "fresh", readFrame(t, fr))

	_, err := newFrameReader(firstRemote, 1024).Next()
	assert.Error(t, err)
	assert.False(t, p.IsClosed(), "superseded stream must not close the peer")
}

func TestPeerStreams_WriteErrorClosesPeer(t *testing.T) {
	var closed atomic.Int32
	p := newTestPeerStreams(func(*PeerStreams) { closed.Add(1) })

	local, remote := newStreamPair(testProto)
	require.NoError(t, p.AttachOutboundStream(local))
	require.NoError(t, remote.Close())

	p.Write([]byte("lost"))

	waitFor(t, func() bool { return closed.Load() == 1 })
	assert.True(t, p.IsClosed())
	assert.False(t, p.IsWritable())
}

func TestPeerStreams_CloseDrainsOutbound(t *testing.T) {
	p := newTestPeerStreams(nil)
	local, remote := newStreamPair(testProto)
	require.NoError(t, p.AttachOutboundStream(local))

	p.Write([]byte("one"))
	p.Write([]byte("two"))
	p.Close()

	fr := newFrameReader(remote, 1024)
	assert.Equal(t, "one", readFrame(t, fr))
	assert.Equal(t, "two", readFrame(t, fr))
	_, err := fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// ============================================================================
//                              入站
// ============================================================================

func TestPeerStreams_InboundFrames(t *testing.T) {
	p := newTestPeerStreams(nil)
	local, remote := newStreamPair(testProto)
	in, err := p.AttachInboundStream(local)
	require.NoError(t, err)
	assert.True(t, p.IsReadable())

	go func() {
		_, _ = remote.Write(appendFrame(appendFrame(nil, []byte("x")), []byte("y")))
		_ = remote.Close()
	}()

	frame, err := in.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", string(frame))

	frame, err = in.Next()
	require.NoError(t, err)
	assert.Equal(t, "y", string(frame))

	_, err = in.Next()
	assert.ErrorIs(t, err, io.EOF)

	p.detachInbound(in)
	assert.False(t, p.IsReadable())
}

func TestPeerStreams_InboundSupersede(t *testing.T) {
	p := newTestPeerStreams(nil)

	first, _ := newStreamPair(testProto)
	oldIn, err := p.AttachInboundStream(first)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := oldIn.Next()
		errCh <- err
	}()

	second, secondRemote := newStreamPair(testProto)
	newIn, err := p.AttachInboundStream(second)
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStreamAbandoned)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded reader did not stop")
	}
	assert.GreaterOrEqual(t, first.resets.Load(), int32(1))

	go func() { _, _ = secondRemote.Write(appendFrame(nil, []byte("new"))) }()
	frame, err := newIn.Next()
	require.NoError(t, err)
	assert.Equal(t, "new", string(frame))

	// 旧流结束后摘除不影响新流
	p.detachInbound(oldIn)
	assert.True(t, p.IsReadable())
}

func TestPeerStreams_InboundFrameTooLarge(t *testing.T) {
	p := NewPeerStreams("peer-1", testProto, 8, nil)
	local, remote := newStreamPair(testProto)
	in, err := p.AttachInboundStream(local)
	require.NoError(t, err)

	go func() { _, _ = remote.Write(varint.ToUvarint(1 << 20)) }()

	_, err = in.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// ============================================================================
//                              关闭
// ============================================================================

func TestPeerStreams_CloseIdempotent(t *testing.T) {
	var calls atomic.Int32
	p := newTestPeerStreams(func(got *PeerStreams) {
		calls.Add(1)
		assert.Equal(t, "peer-1", string(got.ID()))
	})

	inRaw, _ := newStreamPair(testProto)
	in, err := p.AttachInboundStream(inRaw)
	require.NoError(t, err)

	p.Close()
	p.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, p.IsClosed())
	assert.False(t, p.IsReadable())

	select {
	case <-in.Done():
	case <-time.After(time.Second):
		t.Fatal("inbound stream not abandoned")
	}
}

func TestPeerStreams_AttachAfterClose(t *testing.T) {
	p := newTestPeerStreams(nil)
	p.Close()

	outRaw, _ := newStreamPair(testProto)
	assert.ErrorIs(t, p.AttachOutboundStream(outRaw), ErrStreamsClosed)
	assert.Equal(t, int32(1), outRaw.resets.Load())

	inRaw, _ := newStreamPair(testProto)
	_, err := p.AttachInboundStream(inRaw)
	assert.ErrorIs(t, err, ErrStreamsClosed)
	waitFor(t, func() bool { return inRaw.resets.Load() == 1 })
}

func TestPeerStreams_ProtocolFromOutbound(t *testing.T) {
	p := NewPeerStreams("peer-1", "", 1024, nil)
	local, _ := newStreamPair(protocolids.FloodSub)
	require.NoError(t, p.AttachOutboundStream(local))
	assert.Equal(t, protocolids.FloodSub, p.Protocol())
}
