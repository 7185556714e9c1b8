package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"tunnel-panel/internal/env"

	"github.com/spf13/viper"
)

/**
 * Server configuration parameters
 * @property {string} address - Server listening address (e.g. ":8000")
 * @property {string} mode - Application mode (debug/release/test)
 * @property {string} socket - Unix socket used by the local CLI, empty disables it
 * @property {string} web_dir - Built admin UI, served when the directory exists
 * @property {bool} swagger - Serve the API docs under /swagger/index.html
 */
type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	Mode           string   `mapstructure:"mode"`
	Socket         string   `mapstructure:"socket"`
	WebDir         string   `mapstructure:"web_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Swagger        bool     `mapstructure:"swagger"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" or empty logs to stdout only
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Database configuration
 * @property {string} type - sqlite, mysql or postgres
 * @property {string} dsn - Driver specific DSN, sqlite defaults to <data_dir>/panel.db
 */
type DatabaseConfig struct {
	Type         string `mapstructure:"type"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	Debug        bool   `mapstructure:"debug"`
}

type PanelConfig struct {
	PublicHost  string        `mapstructure:"public_host"`  //rathole客户端连接面板时使用的地址
	NodeTimeout time.Duration `mapstructure:"node_timeout"` //超过该时长未心跳的节点视为离线
}

type SupervisorConfig struct {
	MaxRestart      int           `mapstructure:"max_restart"`      //进程异常退出后的最大自动重启次数
	RestartDelay    time.Duration `mapstructure:"restart_delay"`    //自动重启前的等待时间
	StartupGrace    time.Duration `mapstructure:"startup_grace"`    //在该时间内退出视为启动失败
	StopTimeout     time.Duration `mapstructure:"stop_timeout"`     //SIGTERM后等待退出的时间，超时强杀
	MonitorInterval time.Duration `mapstructure:"monitor_interval"` //周期检测间隔
}

/**
 * Launch settings of one tunnel core
 * @property {string} command - Executable, may use {{.ConfigPath}}, {{.TunnelID}}, {{.DataDir}}
 * @property {[]string} args - Argument templates
 * @property {string} fallback - Executable tried when command is not found
 * @property {string} down_command - Teardown command for one-shot cores (wireguard)
 */
type CoreConfig struct {
	Command     string   `mapstructure:"command"`
	Args        []string `mapstructure:"args"`
	Fallback    string   `mapstructure:"fallback"`
	DownCommand string   `mapstructure:"down_command"`
	DownArgs    []string `mapstructure:"down_args"`
	TLSCert     string   `mapstructure:"tls_cert"`
	TLSKey      string   `mapstructure:"tls_key"`
}

/**
 * Authentication configuration
 * @property {bool} enabled - Require a bearer token on /api routes
 * @property {string} password_hash - bcrypt hash of the admin password
 * @property {string} secret - HMAC secret used to sign tokens
 */
type AuthConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	Secret       string        `mapstructure:"secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// MetricsConfig 指标推送配置，pushgateway为空时不推送
type MetricsConfig struct {
	Pushgateway  string        `mapstructure:"pushgateway"`
	PushInterval time.Duration `mapstructure:"push_interval"`
}

var ErrCoreNotConfigured = errors.New("core not configured")

type AppConfig struct {
	Server     ServerConfig          `mapstructure:"server"`
	Log        LogConfig             `mapstructure:"log"`
	Database   DatabaseConfig        `mapstructure:"database"`
	DataDir    string                `mapstructure:"data_dir"`
	Panel      PanelConfig           `mapstructure:"panel"`
	Supervisor SupervisorConfig      `mapstructure:"supervisor"`
	Cores      map[string]CoreConfig `mapstructure:"cores"`
	Auth       AuthConfig            `mapstructure:"auth"`
	Metrics    MetricsConfig         `mapstructure:"metrics"`
}

// Core returns launch settings of a core
func (cfg *AppConfig) Core(name string) (CoreConfig, error) {
	cc, ok := cfg.Cores[name]
	if !ok || cc.Command == "" {
		return CoreConfig{}, fmt.Errorf("%w: %s", ErrCoreNotConfigured, name)
	}
	return cc, nil
}

var defaultCores = map[string]CoreConfig{
	"xray": {
		Command: "xray",
		Args:    []string{"run", "-c", "{{.ConfigPath}}"},
	},
	"rathole": {
		Command:  "/usr/local/bin/rathole",
		Fallback: "rathole",
		Args:     []string{"-s", "{{.ConfigPath}}"},
	},
	"hysteria2": {
		Command: "hysteria",
		Args:    []string{"server", "-c", "{{.ConfigPath}}"},
	},
	"wireguard": {
		Command:     "wg-quick",
		Args:        []string{"up", "{{.ConfigPath}}"},
		DownCommand: "wg-quick",
		DownArgs:    []string{"down", "{{.ConfigPath}}"},
	},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.mode", "release")
	if runtime.GOOS != "windows" {
		v.SetDefault("server.socket", env.SocketPath())
	}
	v.SetDefault("server.web_dir", "./web/dist")
	v.SetDefault("server.swagger", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "console")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("data_dir", filepath.Join(env.PanelDir, "data"))
	v.SetDefault("panel.public_host", "")
	v.SetDefault("panel.node_timeout", "2m")
	v.SetDefault("supervisor.max_restart", 3)
	v.SetDefault("supervisor.restart_delay", "1s")
	v.SetDefault("supervisor.startup_grace", "500ms")
	v.SetDefault("supervisor.stop_timeout", "5s")
	v.SetDefault("supervisor.monitor_interval", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.push_interval", "30s")
}

/**
 * Load application configuration from YAML file and TPANEL_* environment variables
 * @param {string} file - Explicit config file, empty searches the default locations
 * @returns {*AppConfig} Loaded configuration with defaults applied
 * @description
 * - Searches ".", "./config" and "/etc/tunnel-panel" for config.yaml
 * - A missing config file is not an error, defaults and env are used
 * - TPANEL_SERVER_ADDRESS overrides server.address, and so on
 */
func LoadConfig(file string) (*AppConfig, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tunnel-panel")
	}
	v.SetEnvPrefix("TPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return collectConfig(&cfg), nil
}

func collectConfig(cfg *AppConfig) *AppConfig {
	if cfg.Cores == nil {
		cfg.Cores = make(map[string]CoreConfig)
	}
	// 配置文件只覆盖部分字段时，其余字段使用内置默认值
	for name, def := range defaultCores {
		cc := cfg.Cores[name]
		if cc.Command == "" {
			cc.Command = def.Command
			if len(cc.Args) == 0 {
				cc.Args = def.Args
			}
			if cc.Fallback == "" {
				cc.Fallback = def.Fallback
			}
		}
		if cc.DownCommand == "" {
			cc.DownCommand = def.DownCommand
			if len(cc.DownArgs) == 0 {
				cc.DownArgs = def.DownArgs
			}
		}
		cfg.Cores[name] = cc
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.DSN == "" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "panel.db")
	}
	if cfg.Supervisor.StopTimeout <= 0 {
		cfg.Supervisor.StopTimeout = 5 * time.Second
	}
	if cfg.Supervisor.MonitorInterval <= 0 {
		cfg.Supervisor.MonitorInterval = 30 * time.Second
	}
	if cfg.Panel.NodeTimeout <= 0 {
		cfg.Panel.NodeTimeout = 2 * time.Minute
	}
	if cfg.Metrics.PushInterval <= 0 {
		cfg.Metrics.PushInterval = 30 * time.Second
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	return cfg
}

// Default returns the built-in configuration without reading any file
func Default() *AppConfig {
	v := viper.New()
	setDefaults(v)
	var cfg AppConfig
	_ = v.Unmarshal(&cfg)
	return collectConfig(&cfg)
}

var (
	configFile string
	current    *AppConfig
	mutex      sync.RWMutex
)

// SetConfigFile selects the file used by Init and ReloadConfig
func SetConfigFile(file string) {
	mutex.Lock()
	defer mutex.Unlock()
	configFile = file
}

/**
 * Load configuration into the process wide instance
 * @returns {error} Returns error when the config file exists but can't be parsed
 */
func Init() error {
	mutex.RLock()
	file := configFile
	mutex.RUnlock()

	cfg, err := LoadConfig(file)
	if err != nil {
		return err
	}
	Set(cfg)
	return nil
}

// ReloadConfig re-reads the config file; the old config stays active on failure
func ReloadConfig() error {
	return Init()
}

// Set replaces the process wide configuration
func Set(cfg *AppConfig) {
	mutex.Lock()
	defer mutex.Unlock()
	current = cfg
}

// App returns the active configuration, built-in defaults until Init succeeds
func App() *AppConfig {
	mutex.RLock()
	cfg := current
	mutex.RUnlock()
	if cfg != nil {
		return cfg
	}
	cfg = Default()
	Set(cfg)
	return cfg
}
