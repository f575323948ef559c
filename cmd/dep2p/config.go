package main

import (
	"os"
	"strings"

	"github.com/dep2p/go-dep2p-pubsub/config"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ============================================================================
//                              环境变量
// ============================================================================

// 环境变量名，均使用 DEP2P_ 前缀
const (
	envPrefix          = "DEP2P_"
	envSignaturePolicy = "SIGNATURE_POLICY"
	envIdentityKeyFile = "IDENTITY_KEY_FILE"
	envEmitSelf        = "EMIT_SELF"
	envMetricsAddr     = "METRICS_ADDR"
	envLogFile         = "LOG_FILE"
)

// loadConfig 加载配置文件，未指定时使用默认配置
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.NewConfig(), nil
	}
	return config.LoadFromFile(path)
}

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
func applyEnvOverrides(cfg *config.Config) error {
	if v := getenv(envSignaturePolicy); v != "" {
		policy, err := types.ParseSignaturePolicy(v)
		if err != nil {
			return err
		}
		cfg.PubSub.SignaturePolicy = policy
	}
	if v := getenv(envIdentityKeyFile); v != "" {
		cfg.Identity.KeyFile = v
	}
	if v := getenv(envEmitSelf); v != "" {
		cfg.PubSub.EmitSelf = parseBool(v)
	}
	return nil
}

func getenv(name string) string {
	return os.Getenv(envPrefix + name)
}

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
