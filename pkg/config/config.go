package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 网关类型
const (
	KindHuobi    = "huobi"
	KindOneToken = "onetoken"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "FX_"

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	Console    bool   `yaml:"console" json:"console"`
	File       string `yaml:"file" json:"file"`
	Daily      bool   `yaml:"daily" json:"daily"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// BusConfig 事件总线配置
type BusConfig struct {
	TimerIntervalMs int `yaml:"timer_interval_ms" json:"timer_interval_ms"`
	QueueCapacity   int `yaml:"queue_capacity" json:"queue_capacity"` // 0 表示不限
}

// TimerInterval 定时事件间隔
func (b BusConfig) TimerInterval() time.Duration {
	return time.Duration(b.TimerIntervalMs) * time.Millisecond
}

// RestConfig REST 分发器配置
type RestConfig struct {
	Workers        int `yaml:"workers" json:"workers"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
	RateLimit      int `yaml:"rate_limit" json:"rate_limit"` // 每秒请求数，0 表示不限
}

// Timeout 单次请求超时
func (r RestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// GatewayConfig 单个网关
type GatewayConfig struct {
	Name     string `yaml:"name" json:"name"`
	Kind     string `yaml:"kind" json:"kind"`
	Key      string `yaml:"key" json:"key"`
	Secret   string `yaml:"secret" json:"secret"`
	Exchange string `yaml:"exchange" json:"exchange"`
	Account  string `yaml:"account" json:"account"`
	RestHost string `yaml:"rest_host" json:"rest_host"`
	WsHost   string `yaml:"ws_host" json:"ws_host"`
	// Subscribe 连接后订阅的合约，格式 symbol.EXCHANGE
	Subscribe []string `yaml:"subscribe" json:"subscribe"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	Server   string `yaml:"server" json:"server"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Sender   string `yaml:"sender" json:"sender"`
	Receiver string `yaml:"receiver" json:"receiver"`
}

// DatabaseConfig 历史数据库配置
type DatabaseConfig struct {
	Path        string `yaml:"path" json:"path"` // 为空则不启用
	RecordTicks bool   `yaml:"record_ticks" json:"record_ticks"`
	RecordBars  bool   `yaml:"record_bars" json:"record_bars"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
}

// ServerConfig 控制面 / 指标服务监听地址，为空则不启动
type ServerConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// SecretsConfig 密钥库配置
type SecretsConfig struct {
	Path string `yaml:"path" json:"path"`
	Key  string `yaml:"key" json:"key"`
}

// Config 配置
type Config struct {
	Log          LogConfig       `yaml:"log" json:"log"`
	Bus          BusConfig       `yaml:"bus" json:"bus"`
	Rest         RestConfig      `yaml:"rest" json:"rest"`
	Proxy        ProxyConfig     `yaml:"proxy" json:"proxy"`
	Gateways     []GatewayConfig `yaml:"gateways" json:"gateways"`
	Email        EmailConfig     `yaml:"email" json:"email"`
	Database     DatabaseConfig  `yaml:"database" json:"database"`
	ControlPlane ServerConfig    `yaml:"controlplane" json:"controlplane"`
	Metrics      ServerConfig    `yaml:"metrics" json:"metrics"`
	Secrets      SecretsConfig   `yaml:"secrets" json:"secrets"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Bus:      BusConfig{TimerIntervalMs: 1000},
		Rest:     RestConfig{Workers: 3, TimeoutSeconds: 30},
		Email:    EmailConfig{Port: 465},
		Database: DatabaseConfig{BatchSize: 100},
	}
}

// LoadEnv 加载 .env 文件到环境变量；文件不存在不算错误
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("加载 %s 失败: %w", p, err)
		}
	}
	return nil
}

// Load 读取配置文件（可为空），应用环境变量覆盖
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 环境变量优先于配置文件
func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Bus.TimerIntervalMs = parseIntEnv("BUS_TIMER_INTERVAL_MS", c.Bus.TimerIntervalMs)
	c.Rest.Workers = parseIntEnv("REST_WORKERS", c.Rest.Workers)
	c.Rest.TimeoutSeconds = parseIntEnv("REST_TIMEOUT_SECONDS", c.Rest.TimeoutSeconds)
	c.Rest.RateLimit = parseIntEnv("REST_RATE_LIMIT", c.Rest.RateLimit)
	c.Proxy.Host = getEnv("PROXY_HOST", c.Proxy.Host)
	c.Proxy.Port = parseIntEnv("PROXY_PORT", c.Proxy.Port)
	c.Email.Username = getEnv("EMAIL_USERNAME", c.Email.Username)
	c.Email.Password = getEnv("EMAIL_PASSWORD", c.Email.Password)
	c.Email.Receiver = getEnv("EMAIL_RECEIVER", c.Email.Receiver)
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)
	c.ControlPlane.Listen = getEnv("CONTROLPLANE_LISTEN", c.ControlPlane.Listen)
	c.Metrics.Listen = getEnv("METRICS_LISTEN", c.Metrics.Listen)
	c.Secrets.Path = getEnv("SECRETS_PATH", c.Secrets.Path)
	c.Secrets.Key = getEnv("SECRETS_KEY", c.Secrets.Key)

	// FX_GATEWAY_<NAME>_KEY / _SECRET
	for i := range c.Gateways {
		g := &c.Gateways[i]
		prefix := "GATEWAY_" + envName(g.Name) + "_"
		g.Key = getEnv(prefix+"KEY", g.Key)
		g.Secret = getEnv(prefix+"SECRET", g.Secret)
	}
}

func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
}

// Gateway 按名称查找网关配置
func (c *Config) Gateway(name string) (GatewayConfig, bool) {
	for _, g := range c.Gateways {
		if g.Name == name {
			return g, true
		}
	}
	return GatewayConfig{}, false
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Bus.TimerIntervalMs <= 0 {
		return fmt.Errorf("bus.timer_interval_ms 必须大于 0")
	}
	if c.Bus.QueueCapacity < 0 {
		return fmt.Errorf("bus.queue_capacity 不能为负数")
	}
	if c.Rest.Workers <= 0 {
		return fmt.Errorf("rest.workers 必须大于 0")
	}
	if c.Rest.TimeoutSeconds <= 0 {
		return fmt.Errorf("rest.timeout_seconds 必须大于 0")
	}
	if c.Proxy.Host != "" && (c.Proxy.Port <= 0 || c.Proxy.Port > 65535) {
		return fmt.Errorf("proxy.port 无效: %d", c.Proxy.Port)
	}

	seen := make(map[string]bool, len(c.Gateways))
	for _, g := range c.Gateways {
		if g.Name == "" {
			return fmt.Errorf("网关名称不能为空")
		}
		if seen[g.Name] {
			return fmt.Errorf("网关名称重复: %s", g.Name)
		}
		seen[g.Name] = true

		switch g.Kind {
		case KindHuobi:
		case KindOneToken:
			if g.Account == "" {
				return fmt.Errorf("网关 %s 缺少 account", g.Name)
			}
		default:
			return fmt.Errorf("网关 %s 类型未知: %q", g.Name, g.Kind)
		}
		for _, s := range g.Subscribe {
			if !strings.Contains(s, ".") {
				return fmt.Errorf("网关 %s 订阅格式错误: %q (应为 symbol.EXCHANGE)", g.Name, s)
			}
		}
	}

	if c.Email.Server != "" && c.Email.Sender == "" {
		return fmt.Errorf("email.sender 未配置")
	}
	if c.Database.Path != "" && c.Database.BatchSize <= 0 {
		return fmt.Errorf("database.batch_size 必须大于 0")
	}
	return nil
}

// getEnv 获取 FX_ 前缀环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
