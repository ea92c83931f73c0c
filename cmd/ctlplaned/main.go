// Package main 提供 ctlplaned 守护进程入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dep2p/go-ctlplane"
	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
)

var log = logger.Logger("ctlplaned")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//	命令行参数：运行时覆盖（「这次运行」想怎么跑）
//	配置文件：持久化配置（监听端口以外的许可列表、超时、诊断服务等）
//
// 优先级：命令行参数 > 环境变量（CTLPLANE_*，可由 .env 文件提供）> 配置文件 > 默认值
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile  = flag.String("config", "", "配置文件路径（.json / .yaml）")
	envFile     = flag.String("env", ".env", "环境变量文件路径，不存在时忽略")
	consolePort = flag.Int("console-port", -1, "控制台 TCP 端口（0 = 随机端口）")
	controlAddr = flag.String("control", "", "控制 RPC 端点（tcp:// ipc:// inproc://）")
	showVersion = flag.Bool("version", false, "显示版本信息")
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
		fmt.Println(ctlplane.VersionInfo())
		return nil
	}

	if err := loadEnvFile(*envFile); err != nil {
		return fmt.Errorf("加载环境变量文件失败: %w", err)
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	h, err := ctlplane.New(ctlplane.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("创建控制面失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.Start(ctx); err != nil {
		_ = h.Stop()
		return fmt.Errorf("启动失败: %w", err)
	}

	fmt.Printf("📦 %s\n", ctlplane.VersionInfo())
	if addr := h.ConsoleAddr(); addr != nil {
		fmt.Printf("   控制台:   %s\n", addr)
	}
	fmt.Printf("   控制 RPC: %s\n", h.ControlEndpoint())
	if in := h.Introspect(); in != nil {
		fmt.Printf("   诊断服务: http://%s/debug/introspect\n", in.Addr())
	}
	fmt.Println("控制面已启动，按 Ctrl+C 退出")

	sig := waitForSignal()
	log.Info("收到退出信号", "signal", sig.String())

	fmt.Println("\n正在关闭控制面...")
	return h.Stop()
}

// loadEnvFile 加载 .env 文件，文件不存在时忽略
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	logger.ReloadFromEnv()
	log.Debug("已加载环境变量文件", "path", path)
	return nil
}

// buildConfig 按优先级合成配置
//
//  1. 配置文件（或默认值）
//  2. CTLPLANE_* 环境变量
//  3. 命令行参数
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if isFlagSet("console-port") {
		cfg.Console.Port = *consolePort
	}
	if isFlagSet("control") {
		cfg.Control.Endpoint = *controlAddr
	}

	return cfg, cfg.Validate()
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// waitForSignal 等待 SIGINT / SIGTERM
func waitForSignal() os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	return <-sigCh
}
