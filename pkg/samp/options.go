package samp

import (
	"context"
	"math/rand/v2"
	"net"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// NonceSource returns the 4-byte values echoed by ping, probe and rcon replies.
type NonceSource func() uint32

// Option configures a Session.
type Option func(*Session)

// WithRconPassword sets the password sent with rcon commands. Empty disables rcon.
func WithRconPassword(password string) Option {
	return func(s *Session) { s.rconPassword = password }
}

// WithTimeout sets the receive deadline of simple queries (info, players, rules, ping).
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLatencyMultiplier sets K, the factor applied to a measured ping to get the wait budget
// of the open.mp probe and of rcon replies.
func WithLatencyMultiplier(k float64) Option {
	return func(s *Session) {
		if k > 0 {
			s.latencyK = k
		}
	}
}

// WithMinLatencyWait sets a floor for the K × ping budget. Loopback and LAN servers answer in
// microseconds, which is shorter than scheduling jitter.
func WithMinLatencyWait(d time.Duration) Option {
	return func(s *Session) { s.minWait = max(d, 0) }
}

// WithRconMaxWait caps the total time an rcon exchange may spend collecting replies,
// whatever the adaptive deadline says.
func WithRconMaxWait(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.rconMaxWait = d
		}
	}
}

// WithNonceSource replaces the random nonce generator.
func WithNonceSource(fn NonceSource) Option {
	return func(s *Session) {
		if fn != nil {
			s.nonce = fn
		}
	}
}

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(s *Session) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithLogger sets the logger used for protocol tracing. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func defaultNonce() uint32 {
	return rand.Uint32()
}

var _ Resolver = net.DefaultResolver
