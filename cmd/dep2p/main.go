// Package main 提供 dep2p 命令行入口
//
// 在进程内启动一组节点，全部订阅同一主题并轮流发布消息，
// 用于观察消息传播、签名策略和指标。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-dep2p-pubsub"
	"github.com/dep2p/go-dep2p-pubsub/config"
	"github.com/dep2p/go-dep2p-pubsub/internal/util/logger"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

var log = logger.Logger("dep2p/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile   = flag.String("config", "", "配置文件路径")
	identityFile = flag.String("identity", "", "首个节点的身份密钥文件路径")
	policy       = flag.String("policy", "", "签名策略 (StrictSign/StrictNoSign)")

	nodes    = flag.Int("nodes", 3, "进程内节点数")
	topic    = flag.String("topic", "dep2p-demo", "订阅和发布的主题")
	interval = flag.Duration("interval", time.Second, "发布间隔")
	count    = flag.Int("count", 0, "发布条数（0 = 直到退出）")

	metricsAddr = flag.String("metrics-addr", "", "Prometheus 指标监听地址，如 :9100")
	logFile     = flag.String("log", "", "日志文件路径")

	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		printVersion()
		return nil
	}
	if *showHelp {
		printHelp()
		return nil
	}
	if *nodes < 1 {
		return errors.New("-nodes 至少为 1")
	}

	logHandle, err := setupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %v\n", err)
	}
	if logHandle != nil {
		defer func() { _ = logHandle.Close() }()
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("📦 %s\n", dep2p.VersionInfo())
	log.Info("启动 dep2p", "version", dep2p.Version, "nodes", *nodes, "policy", cfg.PubSub.SignaturePolicy.String())

	network, err := dep2p.NewNetwork(&cfg.Host)
	if err != nil {
		return err
	}
	defer func() { _ = network.Close() }()

	registry := prometheus.NewRegistry()
	group, err := startNodes(ctx, network, cfg, registry)
	if err != nil {
		return err
	}
	defer func() {
		for _, n := range group {
			_ = n.Close()
		}
	}()

	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, registry)
		defer func() { _ = srv.Close() }()
	}

	// 全连接
	for i := range group {
		for j := i + 1; j < len(group); j++ {
			if err := network.Connect(ctx, group[i], group[j]); err != nil {
				return fmt.Errorf("连接节点失败: %w", err)
			}
		}
	}
	printNodeInfo(group)

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	publishLoop(ctx, group)

	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildConfig 构建配置
//
// 优先级（从高到低）：命令行参数、环境变量（DEP2P_*）、配置文件、默认值。
func buildConfig() (*config.Config, error) {
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置文件失败: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if *identityFile != "" {
		cfg.Identity.KeyFile = *identityFile
	}
	if *policy != "" {
		p, err := types.ParseSignaturePolicy(*policy)
		if err != nil {
			return nil, err
		}
		cfg.PubSub.SignaturePolicy = p
	}
	if *metricsAddr == "" {
		*metricsAddr = getenv(envMetricsAddr)
	}

	return cfg, cfg.Validate()
}

// startNodes 启动节点组，只有首个节点使用密钥文件
func startNodes(ctx context.Context, network *dep2p.Network, cfg *config.Config, registry *prometheus.Registry) ([]*dep2p.Node, error) {
	group := make([]*dep2p.Node, 0, *nodes)
	for i := 0; i < *nodes; i++ {
		nodeCfg := config.CloneConfig(cfg)
		if i > 0 {
			nodeCfg.Identity.KeyFile = ""
		}

		opts := []dep2p.Option{
			dep2p.WithConfig(nodeCfg),
			dep2p.WithNetwork(network),
		}
		if *metricsAddr != "" {
			reg := prometheus.WrapRegistererWith(prometheus.Labels{"node": strconv.Itoa(i)}, registry)
			opts = append(opts, dep2p.WithMetrics(reg))
		}

		node, err := dep2p.Start(ctx, opts...)
		if err != nil {
			for _, n := range group {
				_ = n.Close()
			}
			return nil, fmt.Errorf("启动节点 %d 失败: %w", i, err)
		}

		idx := i
		if err := node.Subscribe(*topic, func(msg *dep2p.Message) {
			fmt.Printf("  [node %d] ← %s: %s\n", idx, msg.ReceivedFrom.ShortString(), msg.Data)
		}); err != nil {
			_ = node.Close()
			return nil, err
		}
		group = append(group, node)
	}
	return group, nil
}

// publishLoop 节点轮流发布，直到 ctx 取消或达到 -count
func publishLoop(ctx context.Context, group []*dep2p.Node) {
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for seq := 1; *count == 0 || seq <= *count; seq++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		idx := (seq - 1) % len(group)
		data := []byte(fmt.Sprintf("message #%d from node %d", seq, idx))
		fmt.Printf("[node %d] → %s\n", idx, data)
		if err := group[idx].Publish(ctx, *topic, data); err != nil {
			log.Warn("发布失败", "node", idx, "err", err)
		}
	}

	// 等待最后一条消息送达
	select {
	case <-ctx.Done():
	case <-time.After(*interval):
	}
}

// serveMetrics 暴露 Prometheus 指标
func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("指标服务退出", "addr", addr, "err", err)
		}
	}()
	fmt.Printf("指标: http://%s/metrics\n", addr)
	return srv
}

// setupLogging 指定 -log 或 DEP2P_LOG_FILE 时日志写入文件
func setupLogging() (*os.File, error) {
	path := *logFile
	if path == "" {
		path = getenv(envLogFile)
	}
	if path == "" {
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	logger.SetOutput(file)
	return file, nil
}

func printNodeInfo(group []*dep2p.Node) {
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	for i, n := range group {
		fmt.Printf("║ node %-3d %-48s║\n", i, n.ID().ShortString())
	}
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
}

func printVersion() {
	fmt.Printf("dep2p %s\n", dep2p.Version)
	if dep2p.GitCommit != "" {
		fmt.Printf("  commit: %s\n", dep2p.GitCommit)
	}
	if dep2p.BuildDate != "" {
		fmt.Printf("  built:  %s\n", dep2p.BuildDate)
	}
}

func printHelp() {
	fmt.Println("dep2p - 进程内发布订阅演示")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  dep2p [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  DEP2P_SIGNATURE_POLICY    签名策略")
	fmt.Println("  DEP2P_IDENTITY_KEY_FILE   首个节点的身份密钥文件")
	fmt.Println("  DEP2P_EMIT_SELF           本地发布是否投递给自身 (true/false)")
	fmt.Println("  DEP2P_METRICS_ADDR        指标监听地址")
	fmt.Println("  DEP2P_LOG_FILE            日志文件路径")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  dep2p -nodes 4 -policy StrictNoSign -count 10")
	fmt.Println("  dep2p -metrics-addr :9100")
}
