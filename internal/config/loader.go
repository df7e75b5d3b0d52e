package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath  string
	Listen      string
	LogLevel    string
	MaxSessions int
	Whitelist   string
}

// ParseFlags parses command-line flags from args and returns a Flags struct.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("chatd", flag.ContinueOnError)

	fs.StringVar(&f.ConfigPath, "config", "./chatd.toml", "Path to configuration file")
	fs.StringVar(&f.Listen, "listen", "", "Listen address, host:port")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.IntVar(&f.MaxSessions, "max-sessions", 0, "Maximum concurrent client sessions")
	fs.StringVar(&f.Whitelist, "whitelist", "", "Comma-separated client IPs allowed to connect")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// envOverrides mirrors the environment variables of the original deployment.
// A .env file in the working directory is honored when present.
type envOverrides struct {
	Host      string   `env:"HOST"`
	Port      int      `env:"PORT"`
	Whitelist []string `env:"WHITELIST" envSeparator:","`
	LogLevel  string   `env:"LOG_LEVEL"`
	Users     string   `env:"USER_DB"`
	Messages  string   `env:"MESSAGE_DB"`
	Bans      string   `env:"BANNED_USER_DB"`
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	return mergeConfig(cfg, fileConfig.Chatd), nil
}

// ApplyEnv merges environment variable values into the config. Environment
// values override file values.
func ApplyEnv(cfg Config) (Config, error) {
	// Missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	if ov.Host != "" || ov.Port != 0 {
		cfg.Listen = mergeListen(cfg.Listen, ov.Host, ov.Port)
	}
	if len(ov.Whitelist) > 0 {
		cfg.Whitelist = trimAll(ov.Whitelist)
	}
	if ov.LogLevel != "" {
		cfg.LogLevel = ov.LogLevel
	}
	if ov.Users != "" {
		cfg.Stores.Users = ov.Users
	}
	if ov.Messages != "" {
		cfg.Stores.Messages = ov.Messages
	}
	if ov.Bans != "" {
		cfg.Stores.Bans = ov.Bans
	}

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file and environment values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Listen != "" {
		cfg.Listen = f.Listen
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.MaxSessions > 0 {
		cfg.Limits.MaxSessions = f.MaxSessions
	}

	if f.Whitelist != "" {
		cfg.Whitelist = trimAll(strings.Split(f.Whitelist, ","))
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags, then
// applies environment and flag overrides, in that order.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg, err = ApplyEnv(cfg)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Listen != "" {
		dst.Listen = src.Listen
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}

	if len(src.Whitelist) > 0 {
		dst.Whitelist = src.Whitelist
	}

	if src.Limits.MaxSessions > 0 {
		dst.Limits.MaxSessions = src.Limits.MaxSessions
	}

	if src.Timeouts.Read != "" {
		dst.Timeouts.Read = src.Timeouts.Read
	}

	if src.Timeouts.Accept != "" {
		dst.Timeouts.Accept = src.Timeouts.Accept
	}

	if src.Timeouts.Auth != "" {
		dst.Timeouts.Auth = src.Timeouts.Auth
	}

	if src.Timeouts.Write != "" {
		dst.Timeouts.Write = src.Timeouts.Write
	}

	if src.Rate.Interval != "" {
		dst.Rate.Interval = src.Rate.Interval
	}

	if src.Rate.MaxMessages > 0 {
		dst.Rate.MaxMessages = src.Rate.MaxMessages
	}

	if src.Stores.Users != "" {
		dst.Stores.Users = src.Stores.Users
	}

	if src.Stores.Messages != "" {
		dst.Stores.Messages = src.Stores.Messages
	}

	if src.Stores.Bans != "" {
		dst.Stores.Bans = src.Stores.Bans
	}

	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	return dst
}

// mergeListen combines HOST and PORT overrides with the configured listen
// address, keeping whichever half is not overridden.
func mergeListen(listen, host string, port int) string {
	curHost, curPort, err := net.SplitHostPort(listen)
	if err != nil {
		curHost, curPort = "", ""
	}
	if host == "" {
		host = curHost
	}
	portStr := curPort
	if port != 0 {
		portStr = strconv.Itoa(port)
	}
	return net.JoinHostPort(host, portStr)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
