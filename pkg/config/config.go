// Package config loads gateway settings from a YAML or JSON file, the
// environment and defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
)

const (
	DefaultPort       = 7200
	DefaultStreamPath = "/stream"
	DefaultLogLevel   = "info"
)

// Config is the resolved gateway configuration.
type Config struct {
	Port            int    `validate:"min=1,max=65535"`
	StreamPath      string `validate:"required,startswith=/"`
	MetricsAddr     string
	LogLevel        string `validate:"oneof=debug info warn error"`
	ExposeOnConnect bool
	Connect         ConnectConfig
	// Servers are connected at startup, in name order.
	Servers map[string]mcphost.DescriptorSpec
}

type ConnectConfig struct {
	MaxAttempts int           `validate:"min=1"`
	RetryDelay  time.Duration `validate:"min=0"`
	OpenTimeout time.Duration `validate:"gt=0"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Port:       DefaultPort,
		StreamPath: DefaultStreamPath,
		LogLevel:   DefaultLogLevel,
		Connect: ConnectConfig{
			MaxAttempts: mcphost.DefaultMaxAttempts,
			RetryDelay:  mcphost.DefaultRetryDelay,
			OpenTimeout: mcphost.DefaultOpenTimeout,
		},
		Servers: map[string]mcphost.DescriptorSpec{},
	}
}

var validate = validator.New()

// Validate reports every invalid setting and server entry.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fmt.Errorf("config: invalid %s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
		}
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("config: invalid metricsAddr %q: %w", c.MetricsAddr, err))
		}
	}
	for _, name := range c.ServerNames() {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("config: mcpServers entry with empty name"))
			continue
		}
		if _, err := c.Servers[name].Descriptor(); err != nil {
			errs = append(errs, fmt.Errorf("config: mcpServers.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ServerNames returns the configured server names, sorted.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryOptions maps the connect settings onto registry options.
func (c *Config) RegistryOptions() *mcphost.RegistryOptions {
	return &mcphost.RegistryOptions{
		MaxAttempts: c.Connect.MaxAttempts,
		RetryDelay:  c.Connect.RetryDelay,
		OpenTimeout: c.Connect.OpenTimeout,
	}
}

// fieldPath turns "Config.Connect.MaxAttempts" into "connect.maxAttempts".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}
