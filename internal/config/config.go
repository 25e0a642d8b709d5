package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// AuthConfig 控制接口认证
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// APIConfig 升级控制接口配置
type APIConfig struct {
	Auth AuthConfig `mapstructure:"auth"`
}

// LinkConfig GAIA 链路配置
type LinkConfig struct {
	Transport    string        `mapstructure:"transport"` // tcp | serial
	Addr         string        `mapstructure:"addr"`      // tcp 地址
	Port         string        `mapstructure:"port"`      // 串口设备
	BaudRate     int           `mapstructure:"baudRate"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	VendorID     uint16        `mapstructure:"vendorId"`
	Checksum     bool          `mapstructure:"checksum"` // 发送帧是否带校验
	SendRate     int           `mapstructure:"sendRate"` // 每秒帧数，0 不限
	SendBurst    int           `mapstructure:"sendBurst"`
	EventBuffer  int           `mapstructure:"eventBuffer"`
}

// ReconnectConfig 断线重连策略
type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

// UpgradeConfig 固件升级配置
type UpgradeConfig struct {
	File                   string        `mapstructure:"file"`
	StartRetryDelay        time.Duration `mapstructure:"startRetryDelay"`
	MaxStartAttempts       int           `mapstructure:"maxStartAttempts"`
	ValidationPollInterval time.Duration `mapstructure:"validationPollInterval"`
	ChunkSize              int           `mapstructure:"chunkSize"` // 0 表示按设备请求
	AutoConfirm            bool          `mapstructure:"autoConfirm"`
	CodeMessages           string        `mapstructure:"codeMessages"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config 顶层配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	API       APIConfig       `mapstructure:"api"`
	Link      LinkConfig      `mapstructure:"link"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Upgrade   UpgradeConfig   `mapstructure:"upgrade"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 GAIA_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 GAIA_，并将点号替换为下划线
	v.SetEnvPrefix("GAIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互相依赖的配置项
func (c *Config) Validate() error {
	switch c.Link.Transport {
	case "tcp":
		if c.Link.Addr == "" {
			return errors.New("link.addr is required for tcp transport")
		}
	case "serial":
		if c.Link.Port == "" {
			return errors.New("link.port is required for serial transport")
		}
	default:
		return fmt.Errorf("unknown link.transport %q", c.Link.Transport)
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth.apiKeys is required when auth is enabled")
	}
	if c.Upgrade.ChunkSize < 0 {
		return errors.New("upgrade.chunkSize must not be negative")
	}
	if c.Upgrade.MaxStartAttempts <= 0 {
		return errors.New("upgrade.maxStartAttempts must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gaia-upgrader")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.enable", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.apiKeys", []string{})

	v.SetDefault("link.transport", "tcp")
	v.SetDefault("link.addr", "127.0.0.1:7000")
	v.SetDefault("link.port", "")
	v.SetDefault("link.baudRate", 115200)
	v.SetDefault("link.dialTimeout", "10s")
	v.SetDefault("link.readTimeout", "0s")
	v.SetDefault("link.writeTimeout", "5s")
	v.SetDefault("link.vendorId", 0x000A)
	v.SetDefault("link.checksum", false)
	v.SetDefault("link.sendRate", 0)
	v.SetDefault("link.sendBurst", 0)
	v.SetDefault("link.eventBuffer", 256)

	v.SetDefault("reconnect.maxAttempts", 30)
	v.SetDefault("reconnect.delay", "10s")

	v.SetDefault("upgrade.file", "")
	v.SetDefault("upgrade.startRetryDelay", "2s")
	v.SetDefault("upgrade.maxStartAttempts", 5)
	v.SetDefault("upgrade.validationPollInterval", "1s")
	v.SetDefault("upgrade.chunkSize", 0)
	v.SetDefault("upgrade.autoConfirm", false)
	v.SetDefault("upgrade.codeMessages", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}
