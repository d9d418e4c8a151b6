package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/controlplane/server"
	"github.com/betbot/fxcore/internal/database"
	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/engine"
	"github.com/betbot/fxcore/internal/events"
	"github.com/betbot/fxcore/internal/gateway"
	"github.com/betbot/fxcore/internal/gateway/huobi"
	"github.com/betbot/fxcore/internal/gateway/onetoken"
	"github.com/betbot/fxcore/internal/metrics"
	"github.com/betbot/fxcore/pkg/config"
	"github.com/betbot/fxcore/pkg/ratelimit"
	"github.com/betbot/fxcore/pkg/rest"
	"github.com/betbot/fxcore/pkg/secretstore"
	"github.com/betbot/fxcore/pkg/shutdown"
)

// app 进程内的全部组件
type app struct {
	cfg      *config.Config
	main     *engine.MainEngine
	registry *gateway.ContractRegistry
	secrets  *secretstore.Store
	db       *database.SQLite
	recorder *database.Recorder
	cp       *server.Server

	// gatewayCfg 网关实例名 -> 配置
	gatewayCfg map[string]config.GatewayConfig
	shutdown   *shutdown.Manager
	cancel     context.CancelFunc
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:        cfg,
		registry:   gateway.NewContractRegistry(),
		gatewayCfg: make(map[string]config.GatewayConfig),
		shutdown:   shutdown.NewManager(),
	}
	a.registerShutdown()

	if cfg.Secrets.Path != "" {
		key, err := secretstore.ParseKey(cfg.Secrets.Key)
		if err != nil {
			return nil, fmt.Errorf("secrets key: %w", err)
		}
		s, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Secrets.Path, EncryptionKey: key})
		if err != nil {
			return nil, fmt.Errorf("open secrets: %w", err)
		}
		a.secrets = s
	}

	busOpts := []events.Option{events.WithLogger(logrus.WithField("component", "bus"))}
	if d := cfg.Bus.TimerInterval(); d > 0 {
		busOpts = append(busOpts, events.WithInterval(d))
	}
	if cfg.Bus.QueueCapacity > 0 {
		busOpts = append(busOpts, events.WithCapacity(cfg.Bus.QueueCapacity))
	}
	a.main = engine.New(events.NewBus(busOpts...), engine.WithEmail(engine.EmailSettings{
		Server:   cfg.Email.Server,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		Sender:   cfg.Email.Sender,
		Receiver: cfg.Email.Receiver,
	}, nil))

	for _, gc := range cfg.Gateways {
		g, err := a.buildGateway(gc)
		if err != nil {
			a.close(context.Background())
			return nil, err
		}
		if _, dup := a.gatewayCfg[g.Name()]; dup {
			a.close(context.Background())
			return nil, fmt.Errorf("gateway %s: %s already configured", gc.Name, g.Name())
		}
		a.main.AddGateway(g)
		a.gatewayCfg[g.Name()] = gc
	}

	if cfg.Database.Path != "" {
		db, err := database.OpenSQLite(cfg.Database.Path)
		if err != nil {
			a.close(context.Background())
			return nil, err
		}
		a.db = db
		a.recorder = database.NewRecorder(db, a.main.Bus(), database.RecorderOptions{
			RecordTicks: cfg.Database.RecordTicks,
			RecordBars:  cfg.Database.RecordBars,
			BatchSize:   cfg.Database.BatchSize,
		})
		a.main.AddEngine(a.recorder)
	}

	if cfg.ControlPlane.Listen != "" {
		cp, err := server.New(server.Config{
			Listen:       cfg.ControlPlane.Listen,
			GatewayNames: a.main.GatewayNames,
		}, a.main.OMS())
		if err != nil {
			a.close(context.Background())
			return nil, err
		}
		a.cp = cp
	}
	return a, nil
}

func (a *app) restOptions() ([]rest.Option, error) {
	opts := []rest.Option{rest.WithTimeout(a.cfg.Rest.Timeout())}
	limiter, err := ratelimit.New(ratelimit.KindTokenBucket, a.cfg.Rest.RateLimit, time.Second)
	if err != nil {
		return nil, err
	}
	if limiter != nil {
		opts = append(opts, rest.WithRateLimiter(limiter))
	}
	return opts, nil
}

func (a *app) buildGateway(gc config.GatewayConfig) (gateway.Gateway, error) {
	opts, err := a.restOptions()
	if err != nil {
		return nil, err
	}
	switch gc.Kind {
	case config.KindHuobi:
		return huobi.New(a.main.Bus(), a.registry, opts...), nil
	case config.KindOneToken:
		return onetoken.New(a.main.Bus(), a.registry, opts...), nil
	}
	return nil, fmt.Errorf("gateway %s: unknown kind %q", gc.Name, gc.Kind)
}

// credentials 密钥库中的凭证优先于配置文件
func (a *app) credentials(gc config.GatewayConfig) (string, string) {
	key, secret := gc.Key, gc.Secret
	if a.secrets == nil {
		return key, secret
	}
	k, s, found, err := a.secrets.Credentials(gc.Name)
	if err != nil {
		logrus.Warnf("读取网关 %s 凭证失败: %v", gc.Name, err)
		return key, secret
	}
	if found {
		return k, s
	}
	return key, secret
}

// gatewaySetting 合并默认参数、全局配置和网关配置
func (a *app) gatewaySetting(g gateway.Gateway, gc config.GatewayConfig) gateway.Setting {
	setting := g.DefaultSetting()
	key, secret := a.credentials(gc)
	setting["key"] = key
	setting["secret"] = secret
	if a.cfg.Rest.Workers > 0 {
		setting["session_number"] = strconv.Itoa(a.cfg.Rest.Workers)
	}
	if a.cfg.Proxy.Host != "" {
		setting["proxy_host"] = a.cfg.Proxy.Host
		setting["proxy_port"] = strconv.Itoa(a.cfg.Proxy.Port)
	}
	if gc.RestHost != "" {
		setting["rest_host"] = gc.RestHost
	}
	if gc.Kind == config.KindOneToken {
		setting[onetoken.SettingExchange] = gc.Exchange
		setting[onetoken.SettingAccount] = gc.Account
		if gc.WsHost != "" {
			setting[onetoken.SettingWebsocketHost] = gc.WsHost
		}
	}
	return setting
}

// start 连接网关、订阅、启动录制与 HTTP 服务
func (a *app) start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.recorder != nil {
		a.recorder.Start()
	}
	if a.cp != nil {
		if _, err := a.cp.Start(); err != nil {
			return fmt.Errorf("start controlplane: %w", err)
		}
	}
	if a.cfg.Metrics.Listen != "" {
		if _, err := metrics.StartAsync(ctx, a.cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("start metrics: %w", err)
		}
	}

	for _, name := range a.main.GatewayNames() {
		g, err := a.main.Gateway(name)
		if err != nil {
			return err
		}
		gc := a.gatewayCfg[name]
		if err := a.main.Connect(a.gatewaySetting(g, gc), name); err != nil {
			return fmt.Errorf("connect %s: %w", name, err)
		}
		for _, vt := range gc.Subscribe {
			symbol, exchange, ok := domain.ParseVtSymbol(vt)
			if !ok {
				a.main.WriteLog(fmt.Sprintf("订阅格式错误：%s", vt), name)
				continue
			}
			if err := a.main.Subscribe(domain.SubscribeRequest{Symbol: symbol, Exchange: exchange}, name); err != nil {
				a.main.WriteLog(fmt.Sprintf("订阅 %s 失败：%v", vt, err), name)
			}
		}
	}
	return nil
}

func (a *app) registerShutdown() {
	a.shutdown.OnShutdown("controlplane", func(ctx context.Context) error {
		if a.cancel != nil {
			a.cancel()
		}
		if a.cp == nil {
			return nil
		}
		return a.cp.Close(ctx)
	})
	a.shutdown.OnShutdown("main_engine", func(context.Context) error {
		if a.main != nil {
			a.main.Close()
		}
		return nil
	})
	a.shutdown.OnShutdown("storage", func(context.Context) error {
		if a.db == nil {
			return nil
		}
		return a.db.Close()
	})
	a.shutdown.OnShutdownParallel("secrets", func(context.Context) error {
		return a.secrets.Close()
	})
}

// close 初始化或启动失败时释放已创建的资源
func (a *app) close(ctx context.Context) {
	if err := a.shutdown.Shutdown(ctx); err != nil {
		logrus.Warnf("释放资源失败: %v", err)
	}
}
