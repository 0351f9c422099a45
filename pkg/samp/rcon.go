package samp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

// invalidPasswordReply is the first line servers send back for a wrong rcon password.
const invalidPasswordReply = "Invalid RCON password"

type rconState uint8

const (
	rconIdle rconState = iota
	rconSending
	rconAwaiting
	rconDone
	rconFailed
)

func (st rconState) String() string {
	switch st {
	case rconIdle:
		return "idle"
	case rconSending:
		return "sending"
	case rconAwaiting:
		return "awaiting"
	case rconDone:
		return "done"
	case rconFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// rconExchange tracks one command from send to the last collected line.
type rconExchange struct {
	s       *Session
	lines   []string
	state   rconState
	command string
}

func (x *rconExchange) enter(st rconState) {
	x.s.logger.Trace().
		Str("from", x.state.String()).
		Str("to", st.String()).
		Msg("Rcon state")
	x.state = st
}

// Rcon runs command on the server and returns its output lines joined by newlines.
//
// The server answers with any number of datagrams, one line each. Collection stops once
// K × ping passes without a new line; each line pushes that deadline back by the time it took
// to arrive, and the whole exchange never runs longer than the rcon ceiling.
func (s *Session) Rcon(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rconPassword == "" {
		return "", ErrRconDisabled
	}

	x := &rconExchange{s: s, command: command}
	out, err := x.run(ctx)
	if err != nil {
		x.enter(rconFailed)
		return "", err
	}
	x.enter(rconDone)

	return out, nil
}

func (x *rconExchange) run(ctx context.Context) (string, error) {
	s := x.s

	rtt, err := s.ping(ctx)
	if err != nil {
		return "", err
	}

	payload := s.noncePayload()
	payload = append(payload, s.rconPassword...)
	payload = append(payload, x.command...)

	x.enter(rconSending)
	if err := s.send(ctx, OpRcon, payload); err != nil {
		return "", err
	}
	x.enter(rconAwaiting)

	header := s.header(OpRcon, payload)
	started := time.Now()
	ceiling := started.Add(s.rconMaxWait)
	deadline := started.Add(s.latencyBudget(rtt))

	for {
		wait := time.Now()
		body, err := s.receiveMatching(ctx, header, earliest(deadline, ceiling))
		if errors.Is(err, ErrTimeout) {
			break
		}
		if err != nil {
			return "", err
		}
		deadline = deadline.Add(time.Since(wait))

		line, rest, _, err := wire.UnpackString(body, 2)
		if err != nil {
			return "", err
		}
		if err := wire.ExpectEmpty("rcon line", rest); err != nil {
			return "", err
		}
		x.lines = append(x.lines, line)
	}

	s.logger.Debug().
		Int("lines", len(x.lines)).
		Dur("elapsed", time.Since(started)).
		Msg("Rcon replies collected")

	out := strings.Join(x.lines, "\n")
	switch {
	case out == "":
		return "", ErrRconDisabled
	case strings.HasPrefix(x.lines[0], invalidPasswordReply):
		return "", ErrRconInvalidPassword
	}

	return out, nil
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}

	return b
}
