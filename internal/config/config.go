package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHTTPAddr is the default TCP address of the replay HTTP surface.
	DefaultHTTPAddr = ":5029"
	// DefaultGRPCAddr is the default TCP address of the inspection service. Empty disables it.
	DefaultGRPCAddr = ":5030"
	// DefaultPingInterval controls the keepalive cadence for watch WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxWatchers bounds concurrent watch connections. Zero disables the limit.
	DefaultMaxWatchers = 64

	// DefaultMaxDemoKB sizes the recording buffer.
	DefaultMaxDemoKB = 1024
	// DefaultHome is the root under which the replay/ directory lives.
	DefaultHome = "."
	// DefaultExtension is appended to loose replay names without one.
	DefaultExtension = ".lmp"
	// DefaultTicRate is the simulation rate watch feeds are paced at.
	DefaultTicRate = 35

	// DefaultRetainMax bounds how many loose recordings the cleaner keeps per category.
	DefaultRetainMax = 50
	// DefaultRetainAge prunes loose recordings older than this.
	DefaultRetainAge = 30 * 24 * time.Hour

	// DefaultWatchWindow bounds how frequently watch sessions may be opened per client.
	DefaultWatchWindow = time.Minute
	// DefaultWatchBurst sets how many watch sessions may be opened per window.
	DefaultWatchBurst = 4

	// DefaultLogLevel controls verbosity for service logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "demo.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the replay service.
type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	GRPCSecret     string
	AdminSecret    string
	AllowedOrigins []string
	TLSCertPath    string
	TLSKeyPath     string
	ClientCAPath   string
	PingInterval   time.Duration
	MaxWatchers    int
	MaxDemoKB      int
	Home           string
	Extension      string
	Archives       []string
	TicRate        int
	RetainMax      int
	RetainAge      time.Duration
	WatchWindow    time.Duration
	WatchBurst     int
	Logging        LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// RecordCapacity returns the recording buffer size in bytes.
func (c *Config) RecordCapacity() int {
	return c.MaxDemoKB * 1024
}

// Load reads the service configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getString("DEMO_HTTP_ADDR", DefaultHTTPAddr),
		GRPCAddr:       getString("DEMO_GRPC_ADDR", DefaultGRPCAddr),
		GRPCSecret:     strings.TrimSpace(os.Getenv("DEMO_GRPC_SECRET")),
		AdminSecret:    strings.TrimSpace(os.Getenv("DEMO_ADMIN_SECRET")),
		AllowedOrigins: parseList(os.Getenv("DEMO_ALLOWED_ORIGINS")),
		TLSCertPath:    strings.TrimSpace(os.Getenv("DEMO_TLS_CERT")),
		TLSKeyPath:     strings.TrimSpace(os.Getenv("DEMO_TLS_KEY")),
		ClientCAPath:   strings.TrimSpace(os.Getenv("DEMO_GRPC_CLIENT_CA")),
		PingInterval:   DefaultPingInterval,
		MaxWatchers:    DefaultMaxWatchers,
		MaxDemoKB:      DefaultMaxDemoKB,
		Home:           getString("DEMO_HOME", DefaultHome),
		Extension:      getString("DEMO_EXT", DefaultExtension),
		Archives:       parseList(os.Getenv("DEMO_ARCHIVES")),
		TicRate:        DefaultTicRate,
		RetainMax:      DefaultRetainMax,
		RetainAge:      DefaultRetainAge,
		WatchWindow:    DefaultWatchWindow,
		WatchBurst:     DefaultWatchBurst,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("DEMO_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("DEMO_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("DEMO_MAX_KB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DEMO_MAX_KB must be a positive integer, got %q", raw))
		} else {
			cfg.MaxDemoKB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_TICRATE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DEMO_TICRATE must be a positive integer, got %q", raw))
		} else {
			cfg.TicRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DEMO_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_MAX_WATCHERS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DEMO_MAX_WATCHERS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxWatchers = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_RETAIN_MAX")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DEMO_RETAIN_MAX must be a non-negative integer, got %q", raw))
		} else {
			cfg.RetainMax = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_RETAIN_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("DEMO_RETAIN_AGE must be a non-negative duration, got %q", raw))
		} else {
			cfg.RetainAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_WATCH_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DEMO_WATCH_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.WatchWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_WATCH_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DEMO_WATCH_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.WatchBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DEMO_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DEMO_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DEMO_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DEMO_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("DEMO_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if ext := cfg.Extension; !strings.HasPrefix(ext, ".") || len(ext) < 2 {
		problems = append(problems, fmt.Sprintf("DEMO_EXT must start with a dot, got %q", ext))
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "DEMO_TLS_CERT and DEMO_TLS_KEY must be provided together")
	}

	if cfg.ClientCAPath != "" && cfg.TLSCertPath == "" {
		problems = append(problems, "DEMO_GRPC_CLIENT_CA requires DEMO_TLS_CERT and DEMO_TLS_KEY")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

// BindFlags registers the command-line overrides on fs. Flags are applied on
// top of the environment once fs is parsed.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.MaxDemoKB, "maxdemo", c.MaxDemoKB, "recording buffer size in KB")
	fs.StringVar(&c.Home, "home", c.Home, "directory holding replay/")
	fs.StringVar(&c.HTTPAddr, "addr", c.HTTPAddr, "HTTP listen address")
}

// Validate re-checks values that flags may have overridden.
func (c *Config) Validate() error {
	if c.MaxDemoKB <= 0 {
		return fmt.Errorf("-maxdemo must be a positive integer, got %d", c.MaxDemoKB)
	}
	if strings.TrimSpace(c.Home) == "" {
		return errors.New("-home must not be empty")
	}
	return nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
