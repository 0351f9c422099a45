// Package game builds SA:MP query sessions from the application configuration.
package game

import (
	"github.com/rs/zerolog"
	"github.com/woozymasta/sampq/internal/config"
	"github.com/woozymasta/sampq/pkg/samp"
)

// Open returns a session for the configured server. The socket is opened on the first query;
// the caller closes the session.
func Open(cfg *config.Config, logger zerolog.Logger) *samp.Session {
	return samp.New(cfg.Query.Host, cfg.Query.Port, Options(cfg, logger)...)
}

// Options translates the configuration into session options.
func Options(cfg *config.Config, logger zerolog.Logger) []samp.Option {
	return []samp.Option{
		samp.WithTimeout(cfg.Query.Timeout),
		samp.WithLatencyMultiplier(cfg.Query.LatencyMultiplier),
		samp.WithMinLatencyWait(cfg.Query.MinWait),
		samp.WithRconPassword(cfg.Rcon.Password),
		samp.WithRconMaxWait(cfg.Rcon.MaxWait),
		samp.WithLogger(logger.With().
			Str("server", cfg.Query.Host).
			Uint16("port", cfg.Query.Port).
			Logger()),
	}
}
