// Package pubsub 定义 pubsub RPC 的线上消息格式
//
// 消息结构见 rpc.proto，字段编号是互通契约的一部分，不可更改：
//
//	RPC     { 1: repeated SubOpts subscriptions; 2: repeated Message messages }
//	SubOpts { 1: bool subscribe; 2: string topicID }
//	Message { 1: bytes from; 2: bytes data; 3: bytes seqno; 4: repeated string topicIDs;
//	          5: bytes signature; 6: bytes key }
//
// 编解码直接基于 google.golang.org/protobuf/encoding/protowire：
//   - 所有字段可选，nil 表示未出现
//   - 解码跳过未知字段
//   - decode(encode(x)) 与 x 逐字段相等
//   - 编码不做内容校验，校验由签名策略负责
package pubsub
