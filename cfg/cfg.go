package cfg

import (
	"math"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidPort is returned when a port is outside [1, 65535].
	ErrInvalidPort = errors.New("port must be between 1 and 65535")

	// ErrInvalidGracePeriod is returned when waitForConnectionSecs is negative.
	ErrInvalidGracePeriod = errors.New("waitForConnectionSecs must not be negative")
)

// Config defines the configuration for reportproxy.  See the usage string in
// cmd/reportproxy for field descriptions.
type Config struct {
	Port                  int     `yaml:"port"`
	Server                string  `yaml:"server"`
	WaitForConnectionSecs float64 `yaml:"waitForConnectionSecs"`
	UseNode               bool    `yaml:"useNode"`
	NodePort              int     `yaml:"nodePort"`
	StaticRoot            string  `yaml:"staticRoot"`
	AutoLaunch            bool    `yaml:"autoLaunch"`
	HistoryLimit          int     `yaml:"historyLimit"`
	Debug                 bool    `yaml:"debug"`
	SentryDSN             string  `yaml:"sentryDSN"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	return &Config{
		Port:                  5013,
		Server:                "localhost",
		WaitForConnectionSecs: 10.1,
		NodePort:              3000,
		StaticRoot:            "static",
		AutoLaunch:            true,
	}
}

// Load a configuration file, if filename is not empty, over the defaults, then
// apply environment overrides and validate the result.
func Load(filename string) (*Config, error) {
	conf := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		err = yaml.Unmarshal(data, conf)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing config file %s", filename)
		}
	}

	if err := conf.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ApplyEnv overrides fields from REPORTPROXY_* environment variables, read
// through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("REPORTPROXY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "REPORTPROXY_PORT is not a number (%s)", v)
		}
		c.Port = port
	}
	if v := getenv("REPORTPROXY_SERVER"); v != "" {
		c.Server = v
	}
	if v := getenv("REPORTPROXY_WAIT_FOR_CONNECTION_SECS"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "REPORTPROXY_WAIT_FOR_CONNECTION_SECS is not a number (%s)", v)
		}
		c.WaitForConnectionSecs = secs
	}
	if v := getenv("REPORTPROXY_USE_NODE"); v != "" {
		useNode, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "REPORTPROXY_USE_NODE is not a boolean (%s)", v)
		}
		c.UseNode = useNode
	}
	if v := getenv("REPORTPROXY_STATIC_ROOT"); v != "" {
		c.StaticRoot = v
	}
	if v := getenv("REPORTPROXY_AUTO_LAUNCH"); v != "" {
		autoLaunch, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "REPORTPROXY_AUTO_LAUNCH is not a boolean (%s)", v)
		}
		c.AutoLaunch = autoLaunch
	}
	if v := getenv("REPORTPROXY_SENTRY_DSN"); v != "" {
		c.SentryDSN = v
	}
	if getenv("DEBUG") != "" {
		c.Debug = true
	}
	return nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalidPort, "port %d", c.Port)
	}
	if c.UseNode && (c.NodePort < 1 || c.NodePort > 65535) {
		return errors.Wrapf(ErrInvalidPort, "nodePort %d", c.NodePort)
	}
	if c.WaitForConnectionSecs < 0 {
		return ErrInvalidGracePeriod
	}
	return nil
}

// GracePeriod is WaitForConnectionSecs as a duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(math.Round(c.WaitForConnectionSecs * float64(time.Second)))
}
