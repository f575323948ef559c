// Package interfaces 定义 pubsub 的公共接口
//
// # 文件组织
//
//   - protocol.go - pubsub 依赖的外部协作方（Registrar、Topology、Connection、Stream）
//   - pubsub.go   - PubSub 服务接口、Router 扩展点、Message 与回调类型
//
// # 依赖方向
//
//	node → pubsub → interfaces ← host
//
// pubsub 只通过 Registrar 感知连接，不依赖具体的主机实现；
// internal/core/host 提供进程内实现。
//
// # 设计原则
//
// 本包仅包含接口和少量值类型，基础类型定义在 pkg/types，
// 线上格式定义在 pkg/lib/proto/pubsub。
package interfaces
