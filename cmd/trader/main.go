package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/monitor"
	"github.com/betbot/fxcore/pkg/config"
	"github.com/betbot/fxcore/pkg/logger"
)

const gracefulShutdownPeriod = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	envPath := flag.String("env", ".env", ".env 文件路径（不存在时忽略）")
	tui := flag.Bool("tui", false, "启动终端监控界面")
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	if err := config.LoadEnv(*envPath); err != nil {
		logrus.Fatalf("加载 .env 失败: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("配置无效: %v", err)
	}

	logConfig := logger.Config{
		Level:      cfg.Log.Level,
		Console:    cfg.Log.Console && !*tui,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		Daily:      cfg.Log.Daily,
	}
	if err := logger.Init(logConfig); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	defer logger.Close()

	a, err := newApp(cfg)
	if err != nil {
		logrus.Fatalf("初始化失败: %v", err)
	}

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := a.start(rootCtx); err != nil {
		logrus.Errorf("启动失败: %v", err)
		a.close(context.Background())
		os.Exit(1)
	}
	logrus.Infof("fxcore 已启动，网关: %v，按 Ctrl+C 停止", a.main.GatewayNames())

	if *tui {
		if err := monitor.Run(rootCtx, a.main.OMS(), "fxcore"); err != nil {
			logrus.Errorf("监控界面退出: %v", err)
		}
	} else {
		<-rootCtx.Done()
	}
	logrus.Info("收到停止信号，正在关闭...")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()
	if err := a.shutdown.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("优雅关闭未完成: %v", err)
	}
}
