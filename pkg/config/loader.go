package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
)

type rawConfig struct {
	Port            int              `mapstructure:"port"`
	StreamPath      string           `mapstructure:"streamPath"`
	MetricsAddr     string           `mapstructure:"metricsAddr"`
	LogLevel        string           `mapstructure:"logLevel"`
	ExposeOnConnect bool             `mapstructure:"exposeOnConnect"`
	Connect         rawConnectConfig `mapstructure:"connect"`
}

type rawConnectConfig struct {
	MaxAttempts int    `mapstructure:"maxAttempts"`
	RetryDelay  string `mapstructure:"retryDelay"`
	OpenTimeout string `mapstructure:"openTimeout"`
}

// rawServers is decoded with yaml directly: viper lowercases map keys, and
// server names, header names and env names are case-sensitive.
type rawServers struct {
	MCPServers map[string]mcphost.DescriptorSpec `yaml:"mcpServers"`
}

// envOverrides are read from the process environment after the file.
type envOverrides struct {
	Port        int    `env:"MCP_UNI_PORT,strict"`
	StreamPath  string `env:"MCP_UNI_STREAM_PATH,strict"`
	MetricsAddr string `env:"MCP_UNI_METRICS_ADDR,strict"`
	LogLevel    string `env:"MCP_UNI_LOG_LEVEL,strict"`
}

// Loader reads gateway configuration files.
type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("config")}
}

// Load reads the YAML or JSON file at path, expands ${VAR} references and
// applies MCP_UNI_* environment overrides. An empty path yields the defaults.
// The result is not validated; callers apply their own overrides first.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := l.decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) decode(data []byte, cfg *Config) error {
	root, missing, err := expandEnv(data)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		l.logger.Warn("config references unset environment variables", zap.Strings("missing", missing))
	}
	if root.Kind == 0 {
		return nil
	}

	expanded, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode expanded config: %w", err)
	}
	v := newViper(cfg)
	if err := v.ReadConfig(bytes.NewReader(expanded)); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := raw.apply(cfg); err != nil {
		return err
	}

	var servers rawServers
	if err := root.Decode(&servers); err != nil {
		return fmt.Errorf("decode mcpServers: %w", err)
	}
	for name, spec := range servers.MCPServers {
		cfg.Servers[name] = inferType(spec)
	}
	return nil
}

func newViper(defaults *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("port", defaults.Port)
	v.SetDefault("streamPath", defaults.StreamPath)
	v.SetDefault("metricsAddr", defaults.MetricsAddr)
	v.SetDefault("logLevel", defaults.LogLevel)
	v.SetDefault("exposeOnConnect", defaults.ExposeOnConnect)
	v.SetDefault("connect.maxAttempts", defaults.Connect.MaxAttempts)
	v.SetDefault("connect.retryDelay", defaults.Connect.RetryDelay.String())
	v.SetDefault("connect.openTimeout", defaults.Connect.OpenTimeout.String())
	return v
}

func (r rawConfig) apply(cfg *Config) error {
	retryDelay, err := parseDuration("connect.retryDelay", r.Connect.RetryDelay)
	if err != nil {
		return err
	}
	openTimeout, err := parseDuration("connect.openTimeout", r.Connect.OpenTimeout)
	if err != nil {
		return err
	}
	cfg.Port = r.Port
	cfg.StreamPath = r.StreamPath
	cfg.MetricsAddr = r.MetricsAddr
	cfg.LogLevel = strings.ToLower(r.LogLevel)
	cfg.ExposeOnConnect = r.ExposeOnConnect
	cfg.Connect = ConnectConfig{
		MaxAttempts: r.Connect.MaxAttempts,
		RetryDelay:  retryDelay,
		OpenTimeout: openTimeout,
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("config env: %w", err)
	}
	if env.Port != 0 {
		cfg.Port = env.Port
	}
	if env.StreamPath != "" {
		cfg.StreamPath = env.StreamPath
	}
	if env.MetricsAddr != "" {
		cfg.MetricsAddr = env.MetricsAddr
	}
	if env.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(env.LogLevel)
	}
	return nil
}

// inferType fills a missing transport type: entries with a command are
// stdio, entries with a url are streamable HTTP.
func inferType(spec mcphost.DescriptorSpec) mcphost.DescriptorSpec {
	if strings.TrimSpace(spec.Type) != "" {
		return spec
	}
	switch {
	case spec.Command != "":
		spec.Type = "stdio"
	case spec.URL != "":
		spec.Type = string(mcphost.NetworkStreamable)
	}
	return spec
}

// parseDuration accepts Go duration strings ("2500ms", "30s") and bare
// integers, which are read as milliseconds.
func parseDuration(key, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
