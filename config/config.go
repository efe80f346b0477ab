// Package config loads the operational settings for a drpc server or
// client off disk. It does not configure anything about the wire
// protocol itself — frame sizes and packet limits are fixed constants
// (wire.MaxFrameSize, wire.MaxPacketSize), not tunables — only the
// ambient concerns: where to listen, how to log, how long to wait
// during shutdown.
package config

import (
	"time"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"

	"github.com/coregx/drpc/logger"
)

// Config wraps a ucfg.Config with the small set of accessors drpcd
// needs, mirroring the confengine wrapper the rest of the pack uses.
type Config struct {
	conf *ucfg.Config
}

// New wraps an already-parsed ucfg.Config.
func New(conf *ucfg.Config) *Config {
	return &Config{conf: conf}
}

// LoadPath parses the YAML file at path into a Config.
func LoadPath(path string) (*Config, error) {
	conf, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// LoadBytes parses raw YAML content into a Config.
func LoadBytes(b []byte) (*Config, error) {
	conf, err := yaml.NewConfig(b)
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// Unpack decodes the whole document into to, a pointer to a struct
// whose fields carry `config:"..."` tags.
func (c *Config) Unpack(to any) error {
	return c.conf.Unpack(to)
}

// Server holds the settings for a drpcd server process.
type Server struct {
	ListenAddr      string          `config:"listenAddr"`
	ShutdownTimeout time.Duration   `config:"shutdownTimeout"`
	Logger          logger.Options  `config:"logger"`
	Metrics         MetricsSettings `config:"metrics"`
}

// MetricsSettings controls whether and where the Prometheus
// /metrics endpoint listens.
type MetricsSettings struct {
	Enabled bool   `config:"enabled"`
	Addr    string `config:"addr"`
}

// Client holds the settings for a drpcd client process.
type Client struct {
	Addr        string        `config:"addr"`
	DialTimeout time.Duration `config:"dialTimeout"`
	Logger      logger.Options `config:"logger"`
}

// DefaultServer returns the settings drpcd serve uses when no config
// file is given.
func DefaultServer() Server {
	return Server{
		ListenAddr:      "127.0.0.1:7070",
		ShutdownTimeout: 10 * time.Second,
		Logger:          logger.Options{Stdout: true, Level: string(logger.LevelInfo)},
		Metrics:         MetricsSettings{Enabled: false, Addr: "127.0.0.1:9090"},
	}
}

// DefaultClient returns the settings drpcd client uses when no config
// file is given.
func DefaultClient() Client {
	return Client{
		Addr:        "127.0.0.1:7070",
		DialTimeout: 5 * time.Second,
		Logger:      logger.Options{Stdout: true, Level: string(logger.LevelInfo)},
	}
}
