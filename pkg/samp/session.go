// Package samp is a client for the SA:MP / open.mp UDP query protocol.
//
// A Session owns one UDP socket to one server. Every datagram in both directions starts with
// a 10-byte prefix ("SAMP", the server IPv4 and its port), followed by a one-byte opcode.
// Replies are matched purely on that header, so a Session runs one query at a time; open
// several Sessions to query a server concurrently.
package samp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Magic opens every datagram of the protocol.
const Magic = "SAMP"

// Opcodes of the supported queries.
const (
	OpInfo            byte = 'i'
	OpPlayers         byte = 'c'
	OpDetailedPlayers byte = 'd'
	OpRules           byte = 'r'
	OpPing            byte = 'p'
	OpOpenMP          byte = 'o'
	OpRcon            byte = 'x'
)

const (
	// DefaultTimeout bounds the wait of simple queries.
	DefaultTimeout = 20 * time.Second

	// DefaultLatencyMultiplier is K in the K × ping budget of probe and rcon waits.
	DefaultLatencyMultiplier = 5.0

	// DefaultRconMaxWait is the hard ceiling of one rcon exchange.
	DefaultRconMaxWait = 20 * time.Second

	// PlayerQueryLimit is the largest population whose roster servers will send.
	PlayerQueryLimit = 100

	// PrefixSize is the length of the magic + address + port header.
	PrefixSize = len(Magic) + 4 + 2

	maxDatagram = 4096
)

// Session is a query connection to a single server.
//
// Failures match one of the package sentinels. A closed server port usually answers with ICMP
// port unreachable, which is reported as ErrUnreachable rather than waiting for the timeout.
type Session struct {
	resolver Resolver
	nonce    NonceSource
	conn     *net.UDPConn
	logger   zerolog.Logger

	host         string
	rconPassword string
	prefix       []byte
	addr         netip.Addr

	timeout     time.Duration
	minWait     time.Duration
	rconMaxWait time.Duration
	latencyK    float64

	mu     sync.Mutex
	port   uint16
	closed bool
}

// New returns a Session for host:port. Nothing is resolved or opened until the first query.
func New(host string, port uint16, opts ...Option) *Session {
	s := &Session{
		host:        host,
		port:        port,
		resolver:    net.DefaultResolver,
		nonce:       defaultNonce,
		logger:      zerolog.Nop(),
		timeout:     DefaultTimeout,
		latencyK:    DefaultLatencyMultiplier,
		rconMaxWait: DefaultRconMaxWait,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Connect resolves the host and opens the socket. Queries call it implicitly; calling it
// again on a connected Session does nothing.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connect(ctx)
}

// Close releases the socket. Every later call fails with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}

	return s.conn.Close()
}

// Addr returns the resolved server address, or the zero value before the first query.
func (s *Session) Addr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.addr.IsValid() {
		return netip.AddrPort{}
	}

	return netip.AddrPortFrom(s.addr, s.port)
}

// Prefix returns a copy of the datagram prefix, or nil before the first query.
func (s *Session) Prefix() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Clone(s.prefix)
}

func (s *Session) connect(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.conn != nil {
		return nil
	}

	addrs, err := s.resolver.LookupNetIP(ctx, "ip4", s.host)
	if err != nil {
		return &ResolveError{Host: s.host, Err: err}
	}

	var ip netip.Addr
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			ip = a
			break
		}
	}
	if !ip.IsValid() {
		return &ResolveError{Host: s.host}
	}

	remote := netip.AddrPortFrom(ip, s.port)
	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(remote))
	if err != nil {
		return fmt.Errorf("dial %s: %w", remote, err)
	}

	s.conn = conn
	s.addr = ip
	s.prefix = buildPrefix(ip, s.port)

	s.logger.Debug().
		Str("host", s.host).
		Str("addr", remote.String()).
		Msg("Query socket opened")

	return nil
}

func buildPrefix(ip netip.Addr, port uint16) []byte {
	octets := ip.As4()

	prefix := make([]byte, 0, PrefixSize)
	prefix = append(prefix, Magic...)
	prefix = append(prefix, octets[:]...)
	return binary.LittleEndian.AppendUint16(prefix, port)
}

// header is the start every matching reply must have.
func (s *Session) header(opcode byte, echo []byte) []byte {
	h := make([]byte, 0, len(s.prefix)+1+len(echo))
	h = append(h, s.prefix...)
	h = append(h, opcode)
	return append(h, echo...)
}

func (s *Session) send(ctx context.Context, opcode byte, payload []byte) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	packet := s.header(opcode, payload)
	if _, err := s.conn.Write(packet); err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("send %q: %w: %w", opcode, ErrUnreachable, err)
		}
		return fmt.Errorf("send %q: %w", opcode, err)
	}

	s.logger.Trace().
		Str("opcode", string(opcode)).
		Int("size", len(packet)).
		Msg("Datagram sent")

	return nil
}

// receiveMatching reads datagrams until one starts with header and returns what follows it.
// Anything else, such as a late reply to an earlier query, is dropped.
func (s *Session) receiveMatching(ctx context.Context, header []byte, deadline time.Time) ([]byte, error) {
	if s.closed || s.conn == nil {
		return nil, ErrClosed
	}

	start := time.Now()
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	opcode := header[len(s.prefix)]
	buf := make([]byte, maxDatagram)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, ctxErr
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, &TimeoutError{Opcode: opcode, After: time.Since(start)}
			}
			// ICMP port unreachable from an earlier datagram surfaces on a connected socket.
			if errors.Is(err, syscall.ECONNREFUSED) {
				return nil, fmt.Errorf("receive %q: %w: %w", opcode, ErrUnreachable, err)
			}

			return nil, fmt.Errorf("receive %q: %w", opcode, err)
		}

		if !bytes.HasPrefix(buf[:n], header) {
			s.logger.Trace().
				Str("want", string(opcode)).
				Int("size", n).
				Msg("Dropped unmatched datagram")
			continue
		}

		return bytes.Clone(buf[len(header):n]), nil
	}
}

// exchange sends one request and waits for its reply until deadline. echo is the part of the
// payload the server repeats after the opcode.
func (s *Session) exchange(ctx context.Context, opcode byte, payload, echo []byte, deadline time.Time) ([]byte, error) {
	if err := s.send(ctx, opcode, payload); err != nil {
		return nil, err
	}

	return s.receiveMatching(ctx, s.header(opcode, echo), deadline)
}

func (s *Session) noncePayload() []byte {
	return binary.LittleEndian.AppendUint32(make([]byte, 0, 4), s.nonce())
}

// latencyBudget is K × rtt, raised to the configured floor.
func (s *Session) latencyBudget(rtt time.Duration) time.Duration {
	return max(time.Duration(float64(rtt)*s.latencyK), s.minWait)
}
