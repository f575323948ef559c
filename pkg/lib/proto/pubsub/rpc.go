package pubsub

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed 帧内容不是合法的 protobuf 编码
var ErrMalformed = errors.New("pubsub pb: malformed message")

// 字段编号，与 rpc.proto 一致
const (
	rpcSubscriptions protowire.Number = 1
	rpcMessages      protowire.Number = 2

	subOptsSubscribe protowire.Number = 1
	subOptsTopicID   protowire.Number = 2

	msgFrom      protowire.Number = 1
	msgData      protowire.Number = 2
	msgSeqno     protowire.Number = 3
	msgTopicIDs  protowire.Number = 4
	msgSignature protowire.Number = 5
	msgKey       protowire.Number = 6
)

// ============================================================================
//                              消息类型
// ============================================================================

// RPC 一帧消息
type RPC struct {
	Subscriptions []*SubOpts
	Messages      []*Message
}

// SubOpts 订阅变更
//
// 字段为 nil 表示线上未出现该字段。
type SubOpts struct {
	Subscribe *bool
	TopicID   *string
}

// Message 数据消息
//
// 字节字段为 nil 表示线上未出现；非 nil 的空切片编码为长度 0 的字段。
type Message struct {
	From      []byte
	Data      []byte
	Seqno     []byte
	TopicIDs  []string
	Signature []byte
	Key       []byte
}

// NewSubOpts 创建订阅变更
func NewSubOpts(topic string, subscribe bool) *SubOpts {
	return &SubOpts{Subscribe: &subscribe, TopicID: &topic}
}

// GetSubscribe 返回 subscribe，未设置时为 false
func (s *SubOpts) GetSubscribe() bool {
	if s == nil || s.Subscribe == nil {
		return false
	}
	return *s.Subscribe
}

// GetTopicID 返回 topicID，未设置时为空串
func (s *SubOpts) GetTopicID() string {
	if s == nil || s.TopicID == nil {
		return ""
	}
	return *s.TopicID
}

// Clone 深拷贝
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := &Message{
		From:      cloneBytes(m.From),
		Data:      cloneBytes(m.Data),
		Seqno:     cloneBytes(m.Seqno),
		Signature: cloneBytes(m.Signature),
		Key:       cloneBytes(m.Key),
	}
	if m.TopicIDs != nil {
		out.TopicIDs = append([]string{}, m.TopicIDs...)
	}
	return out
}

// ============================================================================
//                              编码
// ============================================================================

// Marshal 编码 RPC
func (r *RPC) Marshal() ([]byte, error) {
	return r.appendTo(nil), nil
}

func (r *RPC) appendTo(b []byte) []byte {
	for _, s := range r.Subscriptions {
		b = protowire.AppendTag(b, rpcSubscriptions, protowire.BytesType)
		b = protowire.AppendBytes(b, s.appendTo(nil))
	}
	for _, m := range r.Messages {
		b = protowire.AppendTag(b, rpcMessages, protowire.BytesType)
		b = protowire.AppendBytes(b, m.appendTo(nil))
	}
	return b
}

// Marshal 编码 SubOpts
func (s *SubOpts) Marshal() ([]byte, error) {
	return s.appendTo(nil), nil
}

func (s *SubOpts) appendTo(b []byte) []byte {
	if s == nil {
		return b
	}
	if s.Subscribe != nil {
		b = protowire.AppendTag(b, subOptsSubscribe, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(*s.Subscribe))
	}
	if s.TopicID != nil {
		b = protowire.AppendTag(b, subOptsTopicID, protowire.BytesType)
		b = protowire.AppendString(b, *s.TopicID)
	}
	return b
}

// Marshal 编码 Message
//
// 编码不做任何内容校验。
func (m *Message) Marshal() ([]byte, error) {
	return m.appendTo(nil), nil
}

func (m *Message) appendTo(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytesField(b, msgFrom, m.From)
	b = appendBytesField(b, msgData, m.Data)
	b = appendBytesField(b, msgSeqno, m.Seqno)
	for _, t := range m.TopicIDs {
		b = protowire.AppendTag(b, msgTopicIDs, protowire.BytesType)
		b = protowire.AppendString(b, t)
	}
	b = appendBytesField(b, msgSignature, m.Signature)
	b = appendBytesField(b, msgKey, m.Key)
	return b
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// ============================================================================
//                              解码
// ============================================================================

// Unmarshal 解码 RPC，未知字段跳过
func (r *RPC) Unmarshal(data []byte) error {
	*r = RPC{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case rpcSubscriptions:
			s := &SubOpts{}
			if err := s.Unmarshal(v); err != nil {
				return err
			}
			r.Subscriptions = append(r.Subscriptions, s)
		case rpcMessages:
			m := &Message{}
			if err := m.Unmarshal(v); err != nil {
				return err
			}
			r.Messages = append(r.Messages, m)
		}
		return nil
	})
}

// Unmarshal 解码 SubOpts，未知字段跳过
func (s *SubOpts) Unmarshal(data []byte) error {
	*s = SubOpts{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == subOptsSubscribe && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return parseErr(n)
			}
			sub := protowire.DecodeBool(x)
			s.Subscribe = &sub
		case num == subOptsTopicID && typ == protowire.BytesType:
			topic := string(v)
			s.TopicID = &topic
		}
		return nil
	})
}

// Unmarshal 解码 Message，未知字段跳过
func (m *Message) Unmarshal(data []byte) error {
	*m = Message{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case msgFrom:
			m.From = cloneBytes(v)
		case msgData:
			m.Data = cloneBytes(v)
		case msgSeqno:
			m.Seqno = cloneBytes(v)
		case msgTopicIDs:
			m.TopicIDs = append(m.TopicIDs, string(v))
		case msgSignature:
			m.Signature = cloneBytes(v)
		case msgKey:
			m.Key = cloneBytes(v)
		}
		return nil
	})
}

// walkFields 遍历所有字段
//
// 对 BytesType 字段 v 为去掉长度前缀后的内容，其它类型 v 为字段值原始字节。
// fn 对不认识的字段返回 nil 即可跳过。
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return parseErr(n)
		}
		data = data[n:]

		size := protowire.ConsumeFieldValue(num, typ, data)
		if size < 0 {
			return parseErr(size)
		}
		field := data[:size]
		data = data[size:]

		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(field)
			if m < 0 {
				return parseErr(m)
			}
			field = v
		}

		if err := fn(num, typ, field); err != nil {
			return err
		}
	}
	return nil
}

func parseErr(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
