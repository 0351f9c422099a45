package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/sampq/internal/geoip"
	"github.com/woozymasta/sampq/pkg/samp"
)

// ErrCommandDenied is returned when an RCON command is not on the allow-list.
var ErrCommandDenied = errors.New("rcon command is not allowed")

func (a *app) register(parser *flags.Parser) error {
	commands := []struct {
		data  any
		name  string
		short string
		long  string
	}{
		{&infoCommand{app: a}, "info", "Server information", "Print host name, game mode, language and player counts."},
		{&playersCommand{app: a}, "players", "Player names and scores", "Print the basic roster. Servers with more than 100 players do not answer it."},
		{&detailedCommand{app: a}, "detailed", "Players with ids and pings", "Print the detailed roster."},
		{&scoresCommand{app: a}, "scores", "Players at or above a score", "Print the detailed roster entries with a score of at least the given value."},
		{&freeCommand{app: a}, "free", "Free player slots", "Print how many more players the server accepts."},
		{&rulesCommand{app: a}, "rules", "Server rules", "Print all rules, or the value of a single rule when a name is given."},
		{&pingCommand{app: a}, "ping", "Round trip time", "Measure query round trips."},
		{&ompCommand{app: a}, "omp", "Detect open.mp", "Report whether the server answers the open.mp probe."},
		{&lagcompCommand{app: a}, "lagcomp", "Hit detection mode", "Print skinshot when lag compensation is on, lagshot when it is off."},
		{&versionCommand{app: a}, "version", "Server version", "Print the version rule of the server."},
		{&rconCommand{app: a}, "rcon", "Run an RCON command", "Run a remote console command and print its output. Requires --rcon-password."},
	}

	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			return fmt.Errorf("command %s: %w", c.name, err)
		}
	}

	return nil
}

type infoReport struct {
	samp.ServerInfo
	Address string `json:"address"`
	Country string `json:"country,omitempty"`
	Free    int    `json:"free"`
}

type infoCommand struct {
	app *app
}

func (c *infoCommand) Execute([]string) error {
	info, err := c.app.session.Info(c.app.ctx)
	if err != nil {
		return err
	}

	report := infoReport{
		ServerInfo: info,
		Address:    c.app.session.Addr().String(),
		Country:    c.app.country(),
		Free:       info.FreeSlots(),
	}

	return c.app.emit(report, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "Name:\t%s\n", report.Name)
		_, _ = fmt.Fprintf(w, "Address:\t%s\n", report.Address)
		if report.Country != "" {
			_, _ = fmt.Fprintf(w, "Country:\t%s\n", report.Country)
		}
		_, _ = fmt.Fprintf(w, "Gamemode:\t%s\n", report.Gamemode)
		_, _ = fmt.Fprintf(w, "Language:\t%s\n", report.Language)
		_, _ = fmt.Fprintf(w, "Players:\t%d/%d\n", report.Players, report.MaxPlayers)
		_, _ = fmt.Fprintf(w, "Password:\t%t\n", report.Password)
	})
}

// country resolves the server address to an ISO code when a GeoIP database is configured.
func (a *app) country() string {
	path := a.cfg.GeoIP.Path
	if path == "" {
		return ""
	}

	if err := geoip.EnsureDB(a.ctx, path, a.cfg.GeoIP.URL, a.cfg.GeoIP.Interval); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to download GeoIP database")
	}

	geo, err := geoip.Open(path)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return ""
	}
	defer func() { _ = geo.Close() }()

	return geo.CountryCode(a.session.Addr().Addr())
}

type playersCommand struct {
	app *app
}

func (c *playersCommand) Execute([]string) error {
	players, err := c.app.session.Players(c.app.ctx)
	if err != nil {
		return err
	}

	return c.app.emit(players, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, "NAME\tSCORE")
		for _, p := range players {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", p.Name, p.Score)
		}
	})
}

type detailedCommand struct {
	app *app
}

func (c *detailedCommand) Execute([]string) error {
	players, err := c.app.session.DetailedPlayers(c.app.ctx)
	if err != nil {
		return err
	}

	return c.app.emitDetailed(players)
}

type scoresCommand struct {
	app  *app
	Args struct {
		MinScore int32 `positional-arg-name:"min-score" required:"yes"`
	} `positional-args:"yes"`
}

func (c *scoresCommand) Execute([]string) error {
	players, err := c.app.session.PlayersWithScore(c.app.ctx, c.Args.MinScore)
	if err != nil {
		return err
	}

	return c.app.emitDetailed(players)
}

func (a *app) emitDetailed(players samp.DetailedPlayerList) error {
	return a.emit(players, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, "ID\tNAME\tSCORE\tPING")
		for _, p := range players {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", p.ID, p.Name, p.Score, p.Ping)
		}
	})
}

type freeCommand struct {
	app *app
}

func (c *freeCommand) Execute([]string) error {
	free, err := c.app.session.FreeSlots(c.app.ctx)
	if err != nil {
		return err
	}

	return c.app.emit(map[string]int{"free": free}, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, free)
	})
}

type rulesCommand struct {
	app  *app
	Args struct {
		Name string `positional-arg-name:"name"`
	} `positional-args:"yes"`
}

func (c *rulesCommand) Execute([]string) error {
	rules, err := c.app.session.Rules(c.app.ctx)
	if err != nil {
		return err
	}

	if c.Args.Name != "" {
		rule, ok := rules.Get(c.Args.Name)
		if !ok {
			return &samp.RuleNotFoundError{Name: c.Args.Name}
		}
		rules = samp.RuleList{rule}
	}

	return c.app.emit(rules, func(w io.Writer) {
		for _, r := range rules {
			_, _ = fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Value)
		}
	})
}

type pingReport struct {
	Samples []float64 `json:"samples_ms"`
	Min     float64   `json:"min_ms"`
	Avg     float64   `json:"avg_ms"`
	Max     float64   `json:"max_ms"`
}

func newPingReport(history []time.Duration) pingReport {
	report := pingReport{Samples: make([]float64, 0, len(history))}
	if len(history) == 0 {
		return report
	}

	var total time.Duration
	lo, hi := history[0], history[0]
	for _, rtt := range history {
		report.Samples = append(report.Samples, milliseconds(rtt))
		total += rtt
		lo, hi = min(lo, rtt), max(hi, rtt)
	}

	report.Min = milliseconds(lo)
	report.Max = milliseconds(hi)
	report.Avg = milliseconds(total / time.Duration(len(history)))
	return report
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

type pingCommand struct {
	app      *app
	Samples  int           `short:"n" long:"samples" description:"Number of pings" default:"4"`
	Interval time.Duration `short:"i" long:"interval" description:"Minimum time between pings" default:"1s"`
}

func (c *pingCommand) Execute([]string) error {
	if c.Samples < 1 {
		return errors.New("`-n, --samples' must be positive")
	}

	history, err := c.app.session.PingHistory(c.app.ctx, c.Samples, c.Interval)
	if err != nil {
		return err
	}

	report := newPingReport(history)
	return c.app.emit(report, func(w io.Writer) {
		for i, ms := range report.Samples {
			_, _ = fmt.Fprintf(w, "seq=%d\t%.3f ms\n", i+1, ms)
		}
		_, _ = fmt.Fprintf(w, "min/avg/max\t%.3f/%.3f/%.3f ms\n", report.Min, report.Avg, report.Max)
	})
}

type ompCommand struct {
	app *app
}

func (c *ompCommand) Execute([]string) error {
	omp, err := c.app.session.IsOpenMP(c.app.ctx)
	if err != nil {
		return err
	}

	return c.app.emit(map[string]bool{"openmp": omp}, func(w io.Writer) {
		if omp {
			_, _ = fmt.Fprintln(w, "open.mp")
		} else {
			_, _ = fmt.Fprintln(w, "SA:MP")
		}
	})
}

type lagcompCommand struct {
	app *app
}

func (c *lagcompCommand) Execute([]string) error {
	mode, err := c.app.session.Lagcomp(c.app.ctx)
	if err != nil {
		return err
	}

	return c.app.emit(map[string]samp.Lagcomp{"lagcomp": mode}, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, mode)
	})
}

type versionCommand struct {
	app *app
}

func (c *versionCommand) Execute([]string) error {
	version, err := c.app.session.ServerVersion(c.app.ctx)
	if err != nil {
		return err
	}

	return c.app.emit(map[string]string{"version": version}, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, version)
	})
}

type rconCommand struct {
	app  *app
	Args struct {
		Command []string `positional-arg-name:"command" required:"1"`
	} `positional-args:"yes"`
}

func (c *rconCommand) Execute([]string) error {
	command := strings.Join(c.Args.Command, " ")
	if !c.app.allow.permits(command) {
		c.app.logger.Warn().Str("command", command).Msg("RCON command rejected by allow-list")
		return fmt.Errorf("%w: %q", ErrCommandDenied, command)
	}

	output, err := c.app.session.Rcon(c.app.ctx, command)
	if err != nil {
		return err
	}

	return c.app.emit(map[string]string{"output": output}, func(w io.Writer) {
		_, _ = fmt.Fprintln(w, output)
	})
}
