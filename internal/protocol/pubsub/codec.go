package pubsub

import (
	"fmt"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	pb "github.com/dep2p/go-dep2p-pubsub/pkg/lib/proto/pubsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// RPCCodec RPC 帧编解码器
//
// 编码结果不含长度前缀，分帧由 PeerStreams 负责。
type RPCCodec interface {
	EncodeRPC(rpc *pb.RPC) ([]byte, error)
	DecodeRPC(data []byte) (*pb.RPC, error)
}

// protoCodec 默认的 protobuf 编解码器
type protoCodec struct{}

// ProtoCodec 返回默认的 protobuf 编解码器
func ProtoCodec() RPCCodec {
	return protoCodec{}
}

func (protoCodec) EncodeRPC(rpc *pb.RPC) ([]byte, error) {
	return rpc.Marshal()
}

func (protoCodec) DecodeRPC(data []byte) (*pb.RPC, error) {
	rpc := &pb.RPC{}
	if err := rpc.Unmarshal(data); err != nil {
		return nil, err
	}
	return rpc, nil
}

// ============================================================================
//                              消息转换
// ============================================================================

// toWireMessage 转为线上消息
//
// 没有作者时不写 from，保证 StrictNoSign 下字段缺省而不是空值；
// 收到的空 from 原样转发。
func toWireMessage(msg *interfaces.Message) *pb.Message {
	m := &pb.Message{
		Data:      msg.Data,
		Seqno:     msg.Seqno,
		TopicIDs:  []string{msg.Topic},
		Signature: msg.Signature,
		Key:       msg.Key,
	}
	if msg.FromPresent || !msg.From.IsEmpty() {
		m.From = append([]byte{}, msg.From...)
	}
	return m
}

// fromWireMessage 由线上消息构造本地消息，要求恰好一个主题
func fromWireMessage(m *pb.Message, receivedFrom types.PeerID) (*interfaces.Message, error) {
	if len(m.TopicIDs) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopicIDs, len(m.TopicIDs))
	}
	msg := &interfaces.Message{
		Data:         m.Data,
		Topic:        m.TopicIDs[0],
		Seqno:        m.Seqno,
		Signature:    m.Signature,
		Key:          m.Key,
		ReceivedFrom: receivedFrom,
	}
	if m.From != nil {
		msg.From = types.PeerID(m.From)
		msg.FromPresent = true
	}
	return msg, nil
}

// signingBytes 签名覆盖的内容：去掉 signature 和 key 后的编码
func signingBytes(msg *interfaces.Message) ([]byte, error) {
	m := toWireMessage(msg)
	m.Signature = nil
	m.Key = nil
	return m.Marshal()
}

// encodeSubscriptions 编码订阅变更 RPC
func encodeSubscriptions(codec RPCCodec, subs ...types.SubOpt) ([]byte, error) {
	rpc := &pb.RPC{Subscriptions: make([]*pb.SubOpts, 0, len(subs))}
	for _, s := range subs {
		rpc.Subscriptions = append(rpc.Subscriptions, pb.NewSubOpts(s.Topic, s.Subscribe))
	}
	return codec.EncodeRPC(rpc)
}

// encodeMessage 编码只含一条消息的 RPC
func encodeMessage(codec RPCCodec, msg *interfaces.Message) ([]byte, error) {
	return codec.EncodeRPC(&pb.RPC{Messages: []*pb.Message{toWireMessage(msg)}})
}
