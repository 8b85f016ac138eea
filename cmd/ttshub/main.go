package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/ttshub/internal/cache"
	"github.com/iabetor/ttshub/internal/config"
	"github.com/iabetor/ttshub/internal/logger"
	"github.com/iabetor/ttshub/internal/server"
	"github.com/iabetor/ttshub/internal/synth"
)

func main() {
	configPath := flag.String("config", "configs/ttshub.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] ttshub 启动中 (addr=%s, log_level=%s)", cfg.Server.Addr, cfg.Log.Level)

	decls := synth.BuildDeclarations(cfg)
	if len(decls) == 0 {
		fmt.Fprintln(os.Stderr, "没有配置任何合成引擎")
		os.Exit(1)
	}
	reg, err := synth.NewRegistry(decls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建引擎注册表失败: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	router := synth.NewRouter(reg, cfg.Engines.Fallback)
	svc := synth.NewService(reg, router, synth.ServiceOptions{
		MaxChunkLen:  cfg.Synthesis.MaxChunkLen,
		DefaultVoice: cfg.Synthesis.DefaultVoice,
		DefaultLang:  cfg.Synthesis.DefaultLang,
		DefaultSpeed: cfg.Synthesis.DefaultSpeed,
	})

	c, err := cache.Open(cfg.Server.OutputDir, cfg.Cache.MaxSizeMB)
	if err != nil {
		logger.Warnf("[main] 打开缓存失败, 缓存已禁用: %v", err)
		c = nil
	}
	defer c.Close()

	srv, err := server.New(cfg, svc, c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建 HTTP 服务失败: %v\n", err)
		os.Exit(1)
	}

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("[main] 关闭 HTTP 服务出错: %v", err)
		}
	}()

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "HTTP 服务运行出错: %v\n", err)
		os.Exit(1)
	}

	logger.Info("[main] ttshub 已停止")
}
