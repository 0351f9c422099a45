// Package cli wires configuration, logging and the query session into the sampq commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"text/tabwriter"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/woozymasta/sampq/internal/config"
	"github.com/woozymasta/sampq/internal/game"
	"github.com/woozymasta/sampq/internal/logger"
	"github.com/woozymasta/sampq/internal/vars"
	"github.com/woozymasta/sampq/pkg/samp"
)

type app struct {
	ctx     context.Context
	out     io.Writer
	cfg     *config.Config
	session *samp.Session
	allow   allowList
	logger  zerolog.Logger
}

// Run parses args, executes the selected command against the configured server and returns
// the process exit code. Results are written to stdout, diagnostics to the log output.
func Run(ctx context.Context, args []string, stdout io.Writer) int {
	a := &app{
		ctx:    ctx,
		out:    stdout,
		cfg:    &config.Config{},
		logger: zerolog.Nop(),
	}

	parser := config.NewParser(a.cfg)
	if err := a.register(parser); err != nil {
		a.logger.Error().Err(err).Msg("Failed to register commands")
		return 1
	}
	parser.CommandHandler = a.handle

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		a.logger.Debug().Err(err).Msg("Command failed")
		return 1
	}

	return 0
}

// handle runs after flags are parsed. A missing command falls back to info.
func (a *app) handle(cmd flags.Commander, args []string) error {
	if a.cfg.Version {
		vars.Fprint(a.out)
		return nil
	}

	l, closer := logger.Setup(a.cfg.Logger)
	defer func() { _ = closer.Close() }()
	a.logger = l

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.allow = newAllowList(a.cfg.Rcon.Allow)
	a.session = game.Open(a.cfg, a.logger)
	defer func() {
		if err := a.session.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Error closing query session")
		}
	}()

	if cmd == nil {
		cmd = &infoCommand{app: a}
	}

	a.logger.Debug().
		Str("agent", vars.UserAgent()).
		Str("host", a.cfg.Query.Host).
		Uint16("port", a.cfg.Query.Port).
		Msg("Querying server")

	return cmd.Execute(args)
}

// emit writes v as indented JSON when --json is set, otherwise calls text with a tab-aligned writer.
func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.cfg.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}
