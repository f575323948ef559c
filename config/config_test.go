package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p-pubsub/pkg/lib/crypto"
	"github.com/dep2p/go-dep2p-pubsub/pkg/protocolids"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// TestNewConfig 默认配置有效
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
	assert.NoError(t, ValidateAll(cfg))
	assert.Error(t, ValidateAll(nil))

	assert.Equal(t, protocolids.DefaultPubsub, cfg.PubSub.Protocols)
	assert.Equal(t, types.StrictSign, cfg.PubSub.SignaturePolicy)
	assert.False(t, cfg.PubSub.EmitSelf)
	assert.False(t, cfg.PubSub.CanRelayMessage)
	assert.Equal(t, 10, cfg.PubSub.MessageProcessingConcurrency)
	assert.Equal(t, 10*time.Second, cfg.PubSub.NewStreamTimeout.Duration())
	assert.False(t, cfg.Metrics.Enabled)
}

// TestDefaultPubSubConfig_NotAliased 默认协议列表不与全局变量共享底层数组
func TestDefaultPubSubConfig_NotAliased(t *testing.T) {
	cfg := DefaultPubSubConfig()
	cfg.Protocols[0] = "/changed/1.0.0"
	assert.Equal(t, protocolids.SysPubsub, protocolids.DefaultPubsub[0])
}

// TestIdentityConfig 身份配置
func TestIdentityConfig(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		cfg := DefaultIdentityConfig()
		kt, err := cfg.CryptoKeyType()
		require.NoError(t, err)
		assert.Equal(t, crypto.KeyTypeEd25519, kt)
		assert.True(t, cfg.AutoGenerate)
	})

	t.Run("KeyTypes", func(t *testing.T) {
		for name, want := range map[string]crypto.KeyType{
			"ed25519":   crypto.KeyTypeEd25519,
			"RSA":       crypto.KeyTypeRSA,
			"Secp256k1": crypto.KeyTypeSecp256k1,
		} {
			kt, err := DefaultIdentityConfig().WithKeyType(name).CryptoKeyType()
			require.NoError(t, err, name)
			assert.Equal(t, want, kt, name)
		}
	})

	t.Run("InvalidKeyType", func(t *testing.T) {
		assert.Error(t, DefaultIdentityConfig().WithKeyType("ECDSA").Validate())
	})

	t.Run("NoKeySource", func(t *testing.T) {
		cfg := DefaultIdentityConfig()
		cfg.AutoGenerate = false
		assert.Error(t, cfg.Validate())
		assert.NoError(t, cfg.WithKeyFile("node.key").Validate())
	})
}

// TestPubSubConfig_Validate 发布订阅配置校验
func TestPubSubConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PubSubConfig)
	}{
		{"no protocols", func(c *PubSubConfig) { c.Protocols = nil }},
		{"bad protocol", func(c *PubSubConfig) { c.Protocols = []string{"floodsub"} }},
		{"bad policy", func(c *PubSubConfig) { c.SignaturePolicy = types.SignaturePolicy(9) }},
		{"concurrency", func(c *PubSubConfig) { c.MessageProcessingConcurrency = 0 }},
		{"queue size", func(c *PubSubConfig) { c.MessageQueueSize = -1 }},
		{"max message size", func(c *PubSubConfig) { c.MaxMessageSize = 0 }},
		{"stream timeout", func(c *PubSubConfig) { c.NewStreamTimeout = 0 }},
		{"key cache", func(c *PubSubConfig) { c.PublicKeyCacheSize = 0 }},
		{"seen ttl", func(c *PubSubConfig) { c.SeenTTL = 0 }},
		{"seen cache", func(c *PubSubConfig) { c.SeenCacheSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPubSubConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultPubSubConfig().
		WithProtocols(protocolids.SysTestPubsub).
		WithSignaturePolicy(types.StrictNoSign).
		WithEmitSelf(true).
		WithRelay(true)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{protocolids.SysTestPubsub}, cfg.Protocols)
	assert.True(t, cfg.EmitSelf)
	assert.True(t, cfg.CanRelayMessage)

	// 队列大小为 0 表示不排队
	cfg.MessageQueueSize = 0
	assert.NoError(t, cfg.Validate())
}

// TestHostAndMetricsConfig_Validate 主机与指标配置校验
func TestHostAndMetricsConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultHostConfig().Validate())

	h := DefaultHostConfig()
	h.MaxStreamWindowSize = 1024
	assert.Error(t, h.Validate())

	h = DefaultHostConfig()
	h.KeepAliveInterval = 0
	assert.Error(t, h.Validate())
	h.EnableKeepAlive = false
	assert.NoError(t, h.Validate())

	m := MetricsConfig{Enabled: true}
	assert.Error(t, m.Validate())

	cfg := NewConfig()
	cfg.Metrics = m
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics:")
}

// TestDuration_JSON 时长支持字符串和纳秒数
func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	data, err := json.Marshal(Duration(5 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"5s"`, string(data))
	assert.Equal(t, "5s", Duration(5*time.Second).String())
}

// TestFromJSON 部分字段覆盖默认值
func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{
		"identity": {"key_type": "Secp256k1"},
		"pubsub": {"signature_policy": "StrictNoSign", "emit_self": true, "new_stream_timeout": "3s"},
		"host": {"negotiation_timeout": "5s"},
		"metrics": {"enabled": true}
	}`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "Secp256k1", cfg.Identity.KeyType)
	assert.True(t, cfg.Identity.AutoGenerate, "未出现的字段保留默认值")
	assert.Equal(t, types.StrictNoSign, cfg.PubSub.SignaturePolicy)
	assert.True(t, cfg.PubSub.EmitSelf)
	assert.Equal(t, 3*time.Second, cfg.PubSub.NewStreamTimeout.Duration())
	assert.Equal(t, protocolids.DefaultPubsub, cfg.PubSub.Protocols)
	assert.Equal(t, 5*time.Second, cfg.Host.NegotiationTimeout.Duration())
	assert.Equal(t, "dep2p", cfg.Metrics.Namespace)

	_, err = FromJSON([]byte(`{"pubsub": {"signature_policy": "Sometimes"}}`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`{`))
	assert.Error(t, err)
}

// TestSaveAndLoadFile 写入再读取
func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dep2p.json")

	cfg := NewConfig()
	cfg.PubSub = cfg.PubSub.WithSignaturePolicy(types.StrictNoSign).WithProtocols(protocolids.FloodSub)
	require.NoError(t, SaveToFile(cfg, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"signature_policy": "StrictNoSign"`)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"pubsub": {"protocols": []}}`), 0o644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)
}

// TestCloneConfig 克隆不共享协议列表
func TestCloneConfig(t *testing.T) {
	assert.Nil(t, CloneConfig(nil))

	cfg := NewConfig()
	cloned := CloneConfig(cfg)
	cloned.PubSub.Protocols[0] = "/other/1.0.0"
	cloned.PubSub.EmitSelf = true

	assert.Equal(t, protocolids.SysPubsub, cfg.PubSub.Protocols[0])
	assert.False(t, cfg.PubSub.EmitSelf)
}

// TestValidateAndFix 修复零值
func TestValidateAndFix(t *testing.T) {
	fixed, err := ValidateAndFix(nil)
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), fixed)

	cfg := &Config{
		Identity: DefaultIdentityConfig(),
		PubSub:   PubSubConfig{MessageQueueSize: -1},
		Host:     HostConfig{EnableKeepAlive: true},
		Metrics:  MetricsConfig{Enabled: true},
	}
	fixed, err = ValidateAndFix(cfg)
	require.NoError(t, err)

	def := NewConfig()
	assert.Equal(t, def.PubSub, fixed.PubSub)
	assert.Equal(t, def.Host, fixed.Host)
	assert.Equal(t, "dep2p", fixed.Metrics.Namespace)

	// 无法修复的问题仍然报错
	cfg = NewConfig()
	cfg.Identity.KeyType = "DSA"
	_, err = ValidateAndFix(cfg)
	assert.Error(t, err)
}
