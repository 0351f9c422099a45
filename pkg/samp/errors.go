package samp

import (
	"errors"
	"fmt"
	"time"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

// Sentinels for every failure kind the package reports. Typed errors below carry the details
// and match their sentinel with errors.Is.
var (
	ErrResolve             = errors.New("cannot resolve server address")
	ErrTimeout             = errors.New("no reply within deadline")
	ErrDecode              = wire.ErrDecode
	ErrTooManyPlayers      = errors.New("too many players to query")
	ErrRconDisabled        = errors.New("rcon is disabled or no password configured")
	ErrRconInvalidPassword = errors.New("invalid rcon password")
	ErrInvalidLagcomp      = errors.New("invalid lagcomp value")
	ErrRuleNotFound        = errors.New("rule not found")
	ErrClosed              = errors.New("session closed")
	ErrUnreachable         = errors.New("server port unreachable")
)

// DecodeError is returned for malformed or truncated payloads.
type DecodeError = wire.DecodeError

// ResolveError wraps a failed host lookup.
type ResolveError struct {
	Err  error
	Host string
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %s: no IPv4 address", e.Host)
	}

	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

func (e *ResolveError) Is(target error) bool { return target == ErrResolve }

// TimeoutError reports that no datagram with the expected header arrived in time.
type TimeoutError struct {
	After  time.Duration
	Opcode byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("opcode %q: no reply after %s", e.Opcode, e.After.Round(time.Millisecond))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// TooManyPlayersError is returned before a roster request is sent when the server reports
// more players than the query protocol can list.
type TooManyPlayersError struct {
	Players int
	Limit   int
}

func (e *TooManyPlayersError) Error() string {
	return fmt.Sprintf("server has %d players, roster queries are limited to %d", e.Players, e.Limit)
}

func (e *TooManyPlayersError) Is(target error) bool { return target == ErrTooManyPlayers }

// LagcompError reports a missing or unrecognised lagcomp rule.
type LagcompError struct {
	Value   string
	Missing bool
}

func (e *LagcompError) Error() string {
	if e.Missing {
		return "lagcomp rule is not published by the server"
	}

	return fmt.Sprintf("unexpected lagcomp value %q", e.Value)
}

func (e *LagcompError) Is(target error) bool { return target == ErrInvalidLagcomp }

// RuleNotFoundError reports a rule absent from the server's rule table.
type RuleNotFoundError struct {
	Name string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("rule %q not found", e.Name)
}

func (e *RuleNotFoundError) Is(target error) bool { return target == ErrRuleNotFound }
