// Package config describes the command-line and environment configuration of sampq.
package config

import (
	"errors"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/sampq/internal/logger"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Query  Query         `group:"Query Options" env-namespace:"SAMPQ"`
	Rcon   Rcon          `group:"RCON Options" namespace:"rcon" env-namespace:"SAMPQ_RCON"`
	GeoIP  GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"SAMPQ_GEOIP"`
	Logger logger.Config `group:"Logger Options" namespace:"log" env-namespace:"SAMPQ_LOG"`

	JSON    bool `short:"j" long:"json" env:"SAMPQ_JSON" description:"Print results as JSON"`
	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Query holds the target server and protocol timing.
type Query struct {
	// betteralign:ignore

	Host              string        `short:"H" long:"host" env:"HOST" description:"Server host name or IPv4 address" default:"127.0.0.1"`
	Port              uint16        `short:"p" long:"port" env:"PORT" description:"Server query port" default:"7777"`
	Timeout           time.Duration `long:"timeout" env:"TIMEOUT" description:"Reply timeout of simple queries" default:"20s"`
	LatencyMultiplier float64       `long:"latency-multiplier" env:"LATENCY_MULTIPLIER" description:"Ping multiplier for open.mp probe and RCON waits" default:"5"`
	MinWait           time.Duration `long:"min-wait" env:"MIN_WAIT" description:"Lower bound of ping based waits" default:"100ms"`
}

// Rcon holds remote console settings.
type Rcon struct {
	// betteralign:ignore

	Password string        `long:"password" env:"PASSWORD" description:"RCON password"`
	MaxWait  time.Duration `long:"max-wait" env:"MAX_WAIT" description:"Hard limit for collecting RCON output" default:"20s"`
	Allow    []string      `long:"allow" env:"ALLOW" env-delim:"," description:"Allowed RCON command names, all when empty"`
}

// GeoIP holds MaxMind GeoIP configuration. Country lookup is disabled when Path is empty.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Re-download MMDB older than this" default:"168h"`
}

// NewParser returns a go-flags parser bound to cfg. Commands are added by the caller.
func NewParser(cfg *Config) *flags.Parser {
	parser := flags.NewParser(cfg, flags.Default)
	parser.NamespaceDelimiter = "-"
	parser.SubcommandsOptional = true

	return parser
}

// Validate checks values go-flags cannot express with tags.
func (c *Config) Validate() error {
	if c.Query.Host == "" {
		return errors.New("`-H, --host' must not be empty")
	}
	if c.Query.Port == 0 {
		return errors.New("`-p, --port' must not be zero")
	}
	if c.Query.Timeout <= 0 {
		return errors.New("`--timeout' must be positive")
	}
	if c.Query.LatencyMultiplier <= 0 {
		return errors.New("`--latency-multiplier' must be positive")
	}
	if c.Query.MinWait < 0 {
		return errors.New("`--min-wait' must not be negative")
	}
	if c.Rcon.MaxWait <= 0 {
		return errors.New("`--rcon-max-wait' must be positive")
	}

	return nil
}
