package common

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of a probe scenario.
type Config struct {
	LogLevel  string           `yaml:"logLevel"`
	Service   *ServiceConfig   `yaml:"service"`
	Readiness *ReadinessConfig `yaml:"readiness"`
	Failsafe  *FailsafeConfig  `yaml:"failsafe"`
	Gateway   *GatewayConfig   `yaml:"gateway"`
}

// ServiceConfig describes the external process under supervision.
type ServiceConfig struct {
	Binary           string   `yaml:"binary"`
	Args             []string `yaml:"args"`
	Home             string   `yaml:"home"`
	LogFile          string   `yaml:"logFile"`
	TerminateTimeout Duration `yaml:"terminateTimeout"`
}

type ReadinessConfig struct {
	Timeout  Duration `yaml:"timeout"`
	Interval Duration `yaml:"interval"`
}

type FailsafeConfig struct {
	Retry   *RetryPolicyConfig   `yaml:"retry"`
	Timeout *TimeoutPolicyConfig `yaml:"timeout"`
}

type RetryPolicyConfig struct {
	MaxAttempts     int      `yaml:"maxAttempts"`
	Delay           Duration `yaml:"delay"`
	BackoffMaxDelay Duration `yaml:"backoffMaxDelay"`
	BackoffFactor   float32  `yaml:"backoffFactor"`
	Jitter          Duration `yaml:"jitter"`
}

type TimeoutPolicyConfig struct {
	Duration Duration `yaml:"duration"`
}

// GatewayConfig locates the grpc gateway's REST surface. Ports are derived
// from BasePort with the standard offsets (see cluster.Ports).
type GatewayConfig struct {
	Host     string `yaml:"host"`
	BasePort int    `yaml:"basePort"`
	CallPath string `yaml:"callPath"`
}

const (
	DefaultReadinessTimeout  = 30 * time.Second
	DefaultReadinessInterval = 1 * time.Second
	DefaultTerminateTimeout  = 10 * time.Second
	DefaultRetryMaxAttempts  = 30
	DefaultRetryDelay        = 2 * time.Second
	DefaultCallPath          = "/evmos/evm/v1/eth_call"
)

func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Readiness == nil {
		c.Readiness = &ReadinessConfig{}
	}
	if c.Readiness.Timeout == 0 {
		c.Readiness.Timeout = Duration(DefaultReadinessTimeout)
	}
	if c.Readiness.Interval == 0 {
		c.Readiness.Interval = Duration(DefaultReadinessInterval)
	}
	if c.Service != nil && c.Service.TerminateTimeout == 0 {
		c.Service.TerminateTimeout = Duration(DefaultTerminateTimeout)
	}
	if c.Failsafe == nil {
		c.Failsafe = &FailsafeConfig{}
	}
	if c.Failsafe.Retry == nil {
		c.Failsafe.Retry = &RetryPolicyConfig{}
	}
	if c.Failsafe.Retry.MaxAttempts == 0 {
		c.Failsafe.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if c.Failsafe.Retry.Delay == 0 {
		c.Failsafe.Retry.Delay = Duration(DefaultRetryDelay)
	}
	if c.Gateway != nil {
		if c.Gateway.Host == "" {
			c.Gateway.Host = "localhost"
		}
		if c.Gateway.CallPath == "" {
			c.Gateway.CallPath = DefaultCallPath
		}
	}
}

func (c *Config) Validate() error {
	if c.Service != nil && c.Service.Binary == "" {
		return fmt.Errorf("service.binary is required")
	}
	if c.Gateway != nil && c.Gateway.BasePort <= 0 {
		return fmt.Errorf("gateway.basePort must be positive")
	}
	return nil
}

// LoadConfig loads the configuration from the specified file.
func LoadConfig(fs afero.Fs, filename string) (*Config, error) {
	data, err := afero.ReadFile(fs, filename)
	if err != nil {
		return nil, NewErrInvalidConfig(err, filename)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewErrInvalidConfig(err, filename)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, NewErrInvalidConfig(err, filename)
	}

	return &cfg, nil
}
