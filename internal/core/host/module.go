package host

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	// 必需依赖
	PrivateKey crypto.PrivateKey

	// 可选依赖：不提供时创建独立网络
	Network *Network `optional:"true"`
	Config  *Config  `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Host      *Host
	Registrar interfaces.Registrar
}

// ProvideHost 提供 Host 服务
func ProvideHost(lc fx.Lifecycle, input ModuleInput) (ModuleOutput, error) {
	network := input.Network
	if network == nil {
		var err error
		network, err = NewNetwork(input.Config)
		if err != nil {
			return ModuleOutput{}, err
		}
	}

	h, err := network.NewHost(input.PrivateKey)
	if err != nil {
		return ModuleOutput{}, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return h.Close()
		},
	})

	return ModuleOutput{
		Host:      h,
		Registrar: h,
	}, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideHost),
	)
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "host"
	Description = "进程内主机，提供 yamux 连接、multistream 协商和协议注册"
)
