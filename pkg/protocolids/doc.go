// Package protocolids 是协议 ID 的唯一来源
//
// 所有模块、测试、示例在需要协议 ID 时引用本包的常量，不在其它位置写字面量。
//
// # 协议命名规范
//
//   - 系统协议: /dep2p/sys/{name}/{version}
//   - 测试协议: /dep2p/sys/test/{name}/{version}
//   - 兼容协议: 与其它实现互通时使用对方的 ID，例如 /floodsub/1.0.0
//
// # 版本升级策略
//
// major 变更表示不兼容的线上格式变化，此时必须使用新的协议 ID。
package protocolids
