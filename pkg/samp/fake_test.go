package samp

import (
	"bytes"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

const testNonce = 0xDEADBEEF

// fakeServer is a loopback UDP peer speaking the query framing. handle receives the opcode and
// payload of each request and returns replies as opcode + body; the prefix is added here.
type fakeServer struct {
	t      *testing.T
	conn   *net.UDPConn
	handle func(opcode byte, payload []byte) [][]byte
	prefix []byte

	mu       sync.Mutex
	peer     *net.UDPAddr
	opcodes  []byte
	payloads [][]byte

	port uint16
}

func newFakeServer(t *testing.T, handle func(opcode byte, payload []byte) [][]byte) *fakeServer {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	f := &fakeServer{
		t:      t,
		conn:   conn,
		handle: handle,
		port:   port,
		prefix: buildPrefix(netip.MustParseAddr("127.0.0.1"), port),
	}

	done := make(chan struct{})
	go f.serve(done)
	t.Cleanup(func() {
		_ = conn.Close()
		<-done
	})

	return f
}

func (f *fakeServer) serve(done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n <= len(f.prefix) || !bytes.HasPrefix(buf[:n], f.prefix) {
			continue
		}

		opcode := buf[len(f.prefix)]
		payload := bytes.Clone(buf[len(f.prefix)+1 : n])

		f.mu.Lock()
		f.peer = from
		f.opcodes = append(f.opcodes, opcode)
		f.payloads = append(f.payloads, payload)
		f.mu.Unlock()

		if f.handle == nil {
			continue
		}
		for _, reply := range f.handle(opcode, payload) {
			f.push(reply)
		}
	}
}

// push sends opcode + body to the last peer seen.
func (f *fakeServer) push(reply []byte) {
	f.mu.Lock()
	peer := f.peer
	f.mu.Unlock()

	if peer == nil {
		return
	}
	packet := append(bytes.Clone(f.prefix), reply...)
	_, _ = f.conn.WriteToUDP(packet, peer)
}

func (f *fakeServer) seen() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return bytes.Clone(f.opcodes)
}

func (f *fakeServer) payload(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.payloads[i]
}

func (f *fakeServer) session(opts ...Option) *Session {
	base := []Option{
		WithTimeout(time.Second),
		WithMinLatencyWait(150 * time.Millisecond),
		WithNonceSource(func() uint32 { return testNonce }),
	}

	s := New("127.0.0.1", f.port, append(base, opts...)...)
	f.t.Cleanup(func() { _ = s.Close() })

	return s
}

// reply joins an opcode, an optional echo and a body.
func reply(opcode byte, parts ...[]byte) []byte {
	out := []byte{opcode}
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}

func encodeInfo(t *testing.T, info ServerInfo) []byte {
	t.Helper()

	out := []byte{0}
	if info.Password {
		out[0] = 1
	}
	out = wire.AppendFixed(out, info.Players)
	out = wire.AppendFixed(out, info.MaxPlayers)

	var err error
	for _, s := range []string{info.Name, info.Gamemode, info.Language} {
		out, err = wire.AppendString(out, s, 4, wire.UTF8)
		require.NoError(t, err)
	}

	return out
}

func encodeRules(t *testing.T, rules RuleList) []byte {
	t.Helper()

	out := wire.AppendFixed(nil, uint16(len(rules)))
	var err error
	for _, r := range rules {
		out, err = wire.AppendString(out, r.Name, 1, wire.UTF8)
		require.NoError(t, err)
		out, err = wire.AppendString(out, r.Value, 1, r.Encoding)
		require.NoError(t, err)
	}

	return out
}

func encodePlayers(t *testing.T, players PlayerList) []byte {
	t.Helper()

	out := wire.AppendFixed(nil, uint16(len(players)))
	var err error
	for _, p := range players {
		out, err = wire.AppendString(out, p.Name, 1, wire.UTF8)
		require.NoError(t, err)
		out = wire.AppendFixed(out, p.Score)
	}

	return out
}

func encodeDetailedPlayers(t *testing.T, players DetailedPlayerList) []byte {
	t.Helper()

	out := wire.AppendFixed(nil, uint16(len(players)))
	var err error
	for _, p := range players {
		out = wire.AppendFixed(out, p.ID)
		out, err = wire.AppendString(out, p.Name, 1, wire.UTF8)
		require.NoError(t, err)
		out = wire.AppendFixed(out, p.Score)
		out = wire.AppendFixed(out, p.Ping)
	}

	return out
}

func encodeLine(t *testing.T, line string) []byte {
	t.Helper()

	out, err := wire.AppendString(nil, line, 2, wire.UTF8)
	require.NoError(t, err)

	return out
}
