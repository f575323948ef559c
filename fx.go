package dep2p

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	internalconfig "github.com/dep2p/go-dep2p-pubsub/internal/config"
	"github.com/dep2p/go-dep2p-pubsub/internal/core/host"
	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub"
	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub/metrics"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Fx 应用构建
// ════════════════════════════════════════════════════════════════════════════

// buildFxApp 构建 Fx 应用
//
// 模块依赖关系:
//
//	config ──► host ──► pubsub
//	   │                  ▲
//	   └── router ────────┘     metrics (可选) ──► tracer
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	// 1. 配置验证（前置）
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// 直接给出私钥时不读写密钥文件
	if cfg.privateKey != nil {
		cfg.config.Identity.KeyFile = ""
	}

	// 2. 核心模块
	modules := []fx.Option{
		fx.Supply(cfg.network.inner),
		internalconfig.Module(cfg.config),
		host.Module(),
		pubsub.Module(),
	}

	// 3. 用户覆盖
	if priv := cfg.privateKey; priv != nil {
		modules = append(modules, fx.Decorate(func(crypto.PrivateKey) crypto.PrivateKey {
			return priv
		}))
	}
	if router := cfg.router; router != nil {
		modules = append(modules, fx.Decorate(func(interfaces.Router) interfaces.Router {
			return router
		}))
	}

	// 4. 指标（条件加载）
	if cfg.config.Metrics.Enabled {
		registerer := cfg.registerer
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		namespace := cfg.config.Metrics.Namespace
		modules = append(modules, fx.Provide(func() pubsub.Tracer {
			return metrics.NewTracer(namespace, registerer)
		}))
	}

	// 5. 用户自定义选项
	modules = append(modules, cfg.userFxOptions...)

	// 6. 组件注入
	modules = append(modules, fx.Invoke(func(in nodeComponents) {
		node.host = in.Host
		node.pubsub = in.PubSub
	}))

	modules = append(modules, fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: zap.NewNop()}
	}))

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// nodeComponents 注入 Node 的组件
type nodeComponents struct {
	fx.In

	Host   *host.Host
	PubSub interfaces.PubSub `name:"pubsub"`
}
