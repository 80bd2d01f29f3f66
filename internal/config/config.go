// Package config loads the X1-Pulse configuration.
//
// Values are layered, highest priority first: command line flags, PULSE_*
// environment variables (a .env file in the working directory is loaded
// into the environment first), the config file, then built-in defaults.
//
// A minimal config.toml:
//
//	[server]
//	listen_ip = "0.0.0.0"
//	port = 3000
//
//	[[rpc.endpoints]]
//	url = "https://rpc.mainnet.x1.xyz"
//	nickname = "x1-main"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fortiblox/X1-Pulse/internal/types"
)

// EnvPrefix prefixes environment overrides, e.g. PULSE_SERVER_PORT.
const EnvPrefix = "PULSE"

// Defaults for operational parameters.
const (
	DefaultListenIP         = "127.0.0.1"
	DefaultPort             = 3000
	DefaultDataDir          = "./data"
	DefaultStorageEngine    = "badger"
	DefaultPollInterval     = 2000 * time.Millisecond
	DefaultRetention        = time.Hour
	DefaultSweepInterval    = 60 * time.Second
	DefaultCommitment       = "finalized"
	DefaultStatsLogInterval = 50
	DefaultRequestTimeout   = 30 * time.Second
	DefaultQueryRate        = 10.0
	DefaultQueryBurst       = 20
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// ConfigError reports a configuration that cannot be used. The process must
// not start with one.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ServerConfig configures the HTTP API and dashboard.
type ServerConfig struct {
	ListenIP   string  `mapstructure:"listen_ip"`
	Port       int     `mapstructure:"port"`
	QueryRate  float64 `mapstructure:"query_rate"`
	QueryBurst int     `mapstructure:"query_burst"`
}

// RPCConfig holds the endpoint registry and fetch settings.
type RPCConfig struct {
	Endpoints        []types.Endpoint `mapstructure:"endpoints"`
	Commitment       string           `mapstructure:"commitment"`
	PollInterval     time.Duration    `mapstructure:"poll_interval"`
	RequestTimeout   time.Duration    `mapstructure:"request_timeout"`
	StatsLogInterval uint64           `mapstructure:"stats_log_interval"`
}

// StorageConfig configures the sample store and retention.
type StorageConfig struct {
	Engine        string        `mapstructure:"engine"`
	DataDir       string        `mapstructure:"data_dir"`
	SyncWrites    bool          `mapstructure:"sync_writes"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GRPCConfig configures the optional gRPC health service. An empty Listen
// disables it.
type GRPCConfig struct {
	Listen string `mapstructure:"listen"`
}

// Config is the full process configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	RPC     RPCConfig     `mapstructure:"rpc"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"listen-ip":      "server.listen_ip",
	"port":           "server.port",
	"data-dir":       "storage.data_dir",
	"storage-engine": "storage.engine",
	"log-level":      "log.level",
	"grpc-listen":    "grpc.listen",
}

// NewFlagSet returns the command line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("config", "", "Path to the config file (default: ./config.toml)")
	flags.String("listen-ip", DefaultListenIP, "HTTP listen address")
	flags.Int("port", DefaultPort, "HTTP listen port")
	flags.String("data-dir", DefaultDataDir, "Directory for the sample store")
	flags.String("storage-engine", DefaultStorageEngine, "Sample store engine: badger or bolt")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("grpc-listen", "", "gRPC health service address (empty disables it)")
	flags.Bool("version", false, "Print version and exit")
	return flags
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_ip", DefaultListenIP)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.query_rate", DefaultQueryRate)
	v.SetDefault("server.query_burst", DefaultQueryBurst)

	v.SetDefault("rpc.commitment", DefaultCommitment)
	v.SetDefault("rpc.poll_interval", DefaultPollInterval)
	v.SetDefault("rpc.request_timeout", DefaultRequestTimeout)
	v.SetDefault("rpc.stats_log_interval", DefaultStatsLogInterval)

	v.SetDefault("storage.engine", DefaultStorageEngine)
	v.SetDefault("storage.data_dir", DefaultDataDir)
	v.SetDefault("storage.sync_writes", false)
	v.SetDefault("storage.retention", DefaultRetention)
	v.SetDefault("storage.sweep_interval", DefaultSweepInterval)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("grpc.listen", "")
}

// Load parses args (without the program name) with a fresh flag set and
// builds the configuration.
func Load(args []string) (*Config, error) {
	flags := NewFlagSet("pulse")
	if err := flags.Parse(args); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return FromFlags(flags)
}

// FromFlags builds the configuration from an already parsed flag set.
func FromFlags(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Field: ".env", Err: err}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, &ConfigError{Field: name, Err: err}
			}
		}
	}

	if err := readConfigFile(v, flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("decode: %w", err)}
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readConfigFile reads --config when given, or config.{toml,yaml} from the
// working directory when present.
func readConfigFile(v *viper.Viper, flags *pflag.FlagSet) error {
	path, _ := flags.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return &ConfigError{Field: "config", Err: err}
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/x1-pulse")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return &ConfigError{Field: "config", Err: err}
	}
	return nil
}

// Validate checks the configuration and returns a *ConfigError describing
// the first problem found.
func (c *Config) Validate() error {
	if c.Server.ListenIP == "" {
		return invalid("server.listen_ip", "must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", "%d out of range", c.Server.Port)
	}

	if len(c.RPC.Endpoints) == 0 {
		return invalid("rpc.endpoints", "at least one endpoint is required")
	}
	seen := make(map[string]struct{}, len(c.RPC.Endpoints))
	for i, ep := range c.RPC.Endpoints {
		field := fmt.Sprintf("rpc.endpoints[%d]", i)
		if ep.Nickname == "" {
			return invalid(field, "nickname is required")
		}
		if strings.Contains(ep.Nickname, ":") {
			return invalid(field, "nickname %q must not contain ':'", ep.Nickname)
		}
		if _, dup := seen[ep.Nickname]; dup {
			return invalid(field, "duplicate nickname %q", ep.Nickname)
		}
		seen[ep.Nickname] = struct{}{}

		u, err := url.Parse(ep.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid(field, "invalid url %q", ep.URL)
		}
	}

	switch c.RPC.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return invalid("rpc.commitment", "unknown commitment %q", c.RPC.Commitment)
	}
	if c.RPC.PollInterval <= 0 {
		return invalid("rpc.poll_interval", "must be positive")
	}
	if c.RPC.RequestTimeout <= 0 {
		return invalid("rpc.request_timeout", "must be positive")
	}

	switch strings.ToLower(c.Storage.Engine) {
	case "badger", "bolt":
	default:
		return invalid("storage.engine", "unknown engine %q", c.Storage.Engine)
	}
	if c.Storage.DataDir == "" {
		return invalid("storage.data_dir", "must not be empty")
	}
	if c.Storage.Retention <= 0 {
		return invalid("storage.retention", "must be positive")
	}
	if c.Storage.SweepInterval <= 0 {
		return invalid("storage.sweep_interval", "must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}

	return nil
}

// HTTPAddress returns the API listen address.
func (c *Config) HTTPAddress() string {
	return net.JoinHostPort(c.Server.ListenIP, strconv.Itoa(c.Server.Port))
}
