package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/logutils"
	"gopkg.in/yaml.v3"

	"github.com/chzchzchz/specan/analyzer"
	"github.com/chzchzchz/specan/radio"
	"github.com/chzchzchz/specan/remote"
)

type Config struct {
	Device   radio.DeviceConfig `yaml:"device"`
	Receiver ReceiverConfig     `yaml:"receiver"`
	Remote   RemoteConfig       `yaml:"remote"`
	MQTT     remote.MQTTConfig  `yaml:"mqtt"`
	HTTP     HTTPConfig         `yaml:"http"`
	Store    StoreConfig        `yaml:"store"`
	Logging  LoggingConfig      `yaml:"logging"`
}

type ReceiverConfig struct {
	analyzer.Settings `yaml:",inline"`
	// Antenna selects by name and overrides antenna_id when set.
	Antenna string `yaml:"antenna"`
}

type RemoteConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Room     string        `yaml:"room"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type HTTPConfig struct {
	// Addr of the local status server; empty disables it.
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Device:   radio.DeviceConfig{Driver: "sim"},
		Receiver: ReceiverConfig{Settings: analyzer.DefaultSettings()},
		Remote: RemoteConfig{
			BaseURL:  "http://localhost:8000",
			Room:     "test",
			Interval: remote.DefaultInterval,
		},
		Logging: LoggingConfig{Level: "INFO"},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

var Levels = []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR"}

func parseLevel(s string) (logutils.LogLevel, error) {
	lvl := logutils.LogLevel(strings.ToUpper(s))
	for _, l := range Levels {
		if l == lvl {
			return lvl, nil
		}
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// SetupLogging routes the standard logger through a level filter. Lines
// without a [LEVEL] prefix are always written.
func SetupLogging(level string, w io.Writer) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	log.SetOutput(&logutils.LevelFilter{Levels: Levels, MinLevel: lvl, Writer: w})
	return nil
}
