// Package logger 提供统一的日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别，子系统名以 "." 分层，父级配置对子级生效
//   - 环境变量配置（DEP2P_LOG_LEVEL, DEP2P_LOG_FORMAT, DEP2P_LOG_ADD_SOURCE）
//   - 运行时调整级别和输出目标
//
// 使用示例:
//
//	var log = logger.Logger("pubsub.peerstreams")
//
//	func foo() {
//	    log.Debug("outbound attached", "peer", peerID, "protocol", proto)
//	    log.Warn("write failed", "peer", peerID, "err", err)
//	}
//
// 环境变量配置:
//
//	# pubsub 及其子系统为 debug，其余为 warn
//	DEP2P_LOG_LEVEL=pubsub=debug,warn
//
//	# 使用 JSON 格式输出
//	DEP2P_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	mu sync.Mutex

	// loggers 各子系统的 Logger
	loggers = make(map[string]*slog.Logger)

	// handlers 各子系统的 Handler（用于动态调整级别）
	handlers = make(map[string]*subsystemHandler)
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回同一实例。
func Logger(subsystem string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[subsystem]; ok {
		return l
	}

	cfg := ConfigFromEnv()
	h := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg)
	l := slog.New(h)

	loggers[subsystem] = l
	handlers[subsystem] = h
	return l
}

// SetLevel 动态设置子系统及其所有子级的日志级别
//
//	logger.SetLevel("pubsub", slog.LevelDebug) // 同时影响 pubsub.peerstreams
func SetLevel(subsystem string, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()

	for name, h := range handlers {
		if matchSubsystem(subsystem, name) {
			h.SetLevel(level)
		}
	}
}

// SetGlobalLevel 设置所有已创建子系统的日志级别
func SetGlobalLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()

	for _, h := range handlers {
		h.SetLevel(level)
	}
}

// Subsystems 返回已创建的子系统名称
func Subsystems() []string {
	mu.Lock()
	defer mu.Unlock()

	names := make([]string, 0, len(loggers))
	for name := range loggers {
		names = append(names, name)
	}
	return names
}

// Discard 返回丢弃所有日志的 Logger，主要用于测试
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样会切换到新的输出。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
