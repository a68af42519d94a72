package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DebugMode enables verbose logging of the sync flow.
var DebugMode = false

// SupportedDepthLimits are the depth sizes CoinEx accepts, ascending.
var SupportedDepthLimits = []int{5, 10, 20, 50}

type Config struct {
	WSURL   string   `yaml:"ws_url"`
	RestURL string   `yaml:"rest_url"`
	Markets []string `yaml:"markets"`

	DepthLimit    int    `yaml:"depth_limit"`
	DepthInterval string `yaml:"depth_interval"`

	PingInterval   time.Duration `yaml:"ping_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DialAttempts   int           `yaml:"dial_attempts"`
	DialBackoffMin time.Duration `yaml:"dial_backoff_min"`
	DialBackoffMax time.Duration `yaml:"dial_backoff_max"`

	ChecksumFailureThreshold int `yaml:"checksum_failure_threshold"`
	MaxResyncs               int `yaml:"max_resyncs"`

	MetricsAddr string `yaml:"metrics_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`

	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
}

func Default() *Config {
	return &Config{
		WSURL:                    "wss://socket.coinex.com/v2/spot",
		RestURL:                  "https://api.coinex.com/v2",
		Markets:                  []string{"BTC_USDT"},
		DepthLimit:               50,
		DepthInterval:            "0",
		PingInterval:             3 * time.Second,
		RequestTimeout:           10 * time.Second,
		DialAttempts:             5,
		DialBackoffMin:           500 * time.Millisecond,
		DialBackoffMax:           30 * time.Second,
		ChecksumFailureThreshold: 3,
		MaxResyncs:               10,
		MetricsAddr:              ":8080",
		GRPCAddr:                 ":50051",
		LogLevel:                 "info",
	}
}

// Load reads .env (if present), then the optional YAML file named by
// COINEX_CONFIG, then applies environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path := os.Getenv("COINEX_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	DebugMode = cfg.Debug
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) overrideWithEnv() {
	c.WSURL = stringOrDefault(os.Getenv("COINEX_WS_URL"), c.WSURL)
	c.RestURL = stringOrDefault(os.Getenv("COINEX_REST_URL"), c.RestURL)
	c.Markets = splitOrDefault(os.Getenv("COINEX_MARKETS"), c.Markets)
	c.DepthLimit = intOrDefault(os.Getenv("COINEX_DEPTH_LIMIT"), c.DepthLimit)
	c.DepthInterval = stringOrDefault(os.Getenv("COINEX_DEPTH_INTERVAL"), c.DepthInterval)
	c.PingInterval = durationOrDefault(os.Getenv("COINEX_PING_INTERVAL"), c.PingInterval)
	c.RequestTimeout = durationOrDefault(os.Getenv("COINEX_REQUEST_TIMEOUT"), c.RequestTimeout)
	c.DialAttempts = intOrDefault(os.Getenv("COINEX_DIAL_ATTEMPTS"), c.DialAttempts)
	c.ChecksumFailureThreshold = intOrDefault(os.Getenv("COINEX_CHECKSUM_FAILURE_THRESHOLD"), c.ChecksumFailureThreshold)
	c.MaxResyncs = intOrDefault(os.Getenv("COINEX_MAX_RESYNCS"), c.MaxResyncs)
	c.MetricsAddr = stringOrDefault(os.Getenv("METRICS_ADDR"), c.MetricsAddr)
	c.GRPCAddr = stringOrDefault(os.Getenv("GRPC_ADDR"), c.GRPCAddr)
	c.LogLevel = stringOrDefault(os.Getenv("LOG_LEVEL"), c.LogLevel)
	c.Debug = boolOrDefault(os.Getenv("DEBUG"), c.Debug)
}

func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return errors.New("at least one market must be configured")
	}

	supported := false
	for _, l := range SupportedDepthLimits {
		if c.DepthLimit == l {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("depth limit %d is not one of %v", c.DepthLimit, SupportedDepthLimits)
	}

	if c.DialAttempts < 1 {
		return errors.New("dial attempts must be positive")
	}
	if c.ChecksumFailureThreshold < 1 {
		return errors.New("checksum failure threshold must be positive")
	}

	return nil
}

// ConfigureLogging applies the configured level to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.Debug {
		level = logrus.DebugLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

func stringOrDefault(raw string, def string) string {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	return strings.TrimSpace(raw)
}

func splitOrDefault(raw string, def []string) []string {
	if strings.TrimSpace(raw) == "" {
		return def
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intOrDefault(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func boolOrDefault(raw string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func durationOrDefault(raw string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}
