package pubsub

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-pubsub/internal/protocol/pubsub/floodsub"
	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Registrar 流处理器和拓扑注册
	Registrar interfaces.Registrar

	// PrivateKey 本地私钥
	PrivateKey crypto.PrivateKey

	// Router 转发策略（可选，默认 floodsub）
	Router interfaces.Router `optional:"true"`

	// Config 配置（可选）
	Config *Config `optional:"true"`

	// Tracer 事件追踪（可选）
	Tracer Tracer `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// PubSub 发布订阅服务
	PubSub interfaces.PubSub `name:"pubsub"`

	// Core 核心实现，供需要内部方法的组件使用
	Core *PubSub
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	router := input.Router
	if router == nil {
		router = floodsub.New()
	}

	var opts []Option
	if input.Config != nil {
		cfg := *input.Config
		opts = append(opts, func(c *Config) { *c = cfg })
	}
	if input.Tracer != nil {
		opts = append(opts, WithTracer(input.Tracer))
	}

	ps, err := New(input.Registrar, router, input.PrivateKey, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}

	return ModuleOutput{
		PubSub: ps,
		Core:   ps,
	}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	PubSub interfaces.PubSub `name:"pubsub"`
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.PubSub.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return input.PubSub.Stop(ctx)
		},
	})
}

// ============================================================================
//                              模块元信息
// ============================================================================

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "pubsub"
	Description = "发布订阅核心，管理节点流、订阅索引和消息验证"
)
