package samp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

func nonceBytes() []byte {
	return wire.AppendFixed(nil, uint32(testNonce))
}

func TestSessionPrefix(t *testing.T) {
	srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
		return nil
	})
	s := srv.session(WithTimeout(50 * time.Millisecond))

	assert.Nil(t, s.Prefix())
	assert.False(t, s.Addr().IsValid())

	_, err := s.Info(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	want := []byte{'S', 'A', 'M', 'P', 127, 0, 0, 1, byte(srv.port), byte(srv.port >> 8)}
	assert.Equal(t, want, s.Prefix())
	assert.Equal(t, netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), srv.port), s.Addr())
	assert.Equal(t, []byte{OpInfo}, srv.seen())
}

func TestInfo(t *testing.T) {
	want := ServerInfo{
		Players:    12,
		MaxPlayers: 100,
		Name:       "Grand Larceny",
		Gamemode:   "Freeroam",
		Language:   "English",
		Encodings:  InfoEncodings{Name: wire.UTF8, Gamemode: wire.UTF8, Language: wire.UTF8},
	}
	body := encodeInfo(t, want)

	srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
		return [][]byte{reply(op, body)}
	})

	got, err := srv.session().Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReceiveDiscardsUnmatched(t *testing.T) {
	info := encodeInfo(t, ServerInfo{Players: 1, MaxPlayers: 2, Name: "x", Gamemode: "y", Language: "z"})
	rules := encodeRules(t, RuleList{{Name: "worldtime", Value: "12:00", Encoding: wire.UTF8}})

	srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
		if op != OpRules {
			return nil
		}
		// A stray info reply and a foreign datagram arrive before the rules reply.
		return [][]byte{reply(OpInfo, info), []byte("garbage"), reply(OpRules, rules)}
	})

	got, err := srv.session().Rules(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12:00", got[0].Value)
}

func TestReceiveMatchingDirect(t *testing.T) {
	srv := newFakeServer(t, nil)
	s := srv.session()
	require.NoError(t, s.Connect(context.Background()))

	// Prime the fake with our address.
	require.NoError(t, s.send(context.Background(), OpPing, nonceBytes()))
	require.Eventually(t, func() bool { return len(srv.seen()) == 1 }, time.Second, 5*time.Millisecond)

	srv.push(reply(OpInfo, []byte{1, 2, 3}))
	srv.push(reply(OpRules, []byte{4, 5}))

	body, err := s.receiveMatching(context.Background(), s.header(OpRules, nil), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, body)
}

func TestTooManyPlayers(t *testing.T) {
	info := encodeInfo(t, ServerInfo{Players: 101, MaxPlayers: 1000, Name: "Big", Gamemode: "TDM", Language: "RU"})

	for name, call := range map[string]func(*Session) error{
		"players": func(s *Session) error {
			_, err := s.Players(context.Background())
			return err
		},
		"detailed players": func(s *Session) error {
			_, err := s.DetailedPlayers(context.Background())
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
				if op == OpInfo {
					return [][]byte{reply(op, info)}
				}
				return nil
			})

			err := call(srv.session())
			require.ErrorIs(t, err, ErrTooManyPlayers)

			var tm *TooManyPlayersError
			require.True(t, errors.As(err, &tm))
			assert.Equal(t, 101, tm.Players)

			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, []byte{OpInfo}, srv.seen())
		})
	}
}

func TestPlayers(t *testing.T) {
	info := encodeInfo(t, ServerInfo{Players: 2, MaxPlayers: 50, Name: "n", Gamemode: "g", Language: "l"})
	players := PlayerList{{Name: "Cesar", Score: 5}, {Name: "Kendl", Score: 9}}
	detailed := DetailedPlayerList{{ID: 0, Name: "Cesar", Score: 5, Ping: 40}, {ID: 1, Name: "Kendl", Score: 9, Ping: 80}}
	plain, full := encodePlayers(t, players), encodeDetailedPlayers(t, detailed)

	srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
		switch op {
		case OpInfo:
			return [][]byte{reply(op, info)}
		case OpPlayers:
			return [][]byte{reply(op, plain)}
		case OpDetailedPlayers:
			return [][]byte{reply(op, full)}
		}
		return nil
	})
	s := srv.session()
	ctx := context.Background()

	gotPlayers, err := s.Players(ctx)
	require.NoError(t, err)
	assert.Equal(t, players, gotPlayers)

	gotDetailed, err := s.DetailedPlayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, detailed, gotDetailed)

	top, err := s.PlayersWithScore(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, DetailedPlayerList{detailed[1]}, top)

	free, err := s.FreeSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 48, free)

	assert.Equal(t, []byte{OpInfo, OpPlayers, OpInfo, OpDetailedPlayers, OpInfo, OpDetailedPlayers, OpInfo}, srv.seen())
}

func TestLagcomp(t *testing.T) {
	cases := []struct {
		rules RuleList
		name  string
		want  Lagcomp
		err   bool
	}{
		{name: "on", rules: RuleList{{Name: "lagcomp", Value: "On"}}, want: Skinshot},
		{name: "on any case", rules: RuleList{{Name: "lagcomp", Value: "oN"}}, want: Skinshot},
		{name: "off", rules: RuleList{{Name: "lagcomp", Value: "Off"}}, want: Lagshot},
		{name: "OFF", rules: RuleList{{Name: "lagcomp", Value: "OFF"}}, want: Lagshot},
		{name: "maybe", rules: RuleList{{Name: "lagcomp", Value: "Maybe"}}, err: true},
		{name: "absent", rules: RuleList{{Name: "weather", Value: "10"}}, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := encodeRules(t, tc.rules)
			srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
				return [][]byte{reply(op, body)}
			})

			got, err := srv.session().Lagcomp(context.Background())
			if tc.err {
				assert.ErrorIs(t, err, ErrInvalidLagcomp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestServerVersion(t *testing.T) {
	body := encodeRules(t, RuleList{{Name: "version", Value: "omp 1.4.0.2779"}})
	srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
		return [][]byte{reply(op, body)}
	})

	v, err := srv.session().ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "omp 1.4.0.2779", v)

	empty := encodeRules(t, nil)
	srv = newFakeServer(t, func(op byte, _ []byte) [][]byte {
		return [][]byte{reply(op, empty)}
	})

	_, err = srv.session().ServerVersion(context.Background())
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestPing(t *testing.T) {
	t.Run("echo", func(t *testing.T) {
		srv := newFakeServer(t, func(op byte, payload []byte) [][]byte {
			return [][]byte{reply(op, payload)}
		})

		rtt, err := srv.session().Ping(context.Background())
		require.NoError(t, err)
		assert.Positive(t, rtt)
		assert.Equal(t, nonceBytes(), srv.payload(0))
	})

	t.Run("leftover body", func(t *testing.T) {
		srv := newFakeServer(t, func(op byte, payload []byte) [][]byte {
			return [][]byte{reply(op, payload, []byte{0x00})}
		})

		_, err := srv.session().Ping(context.Background())
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("wrong nonce", func(t *testing.T) {
		srv := newFakeServer(t, func(op byte, _ []byte) [][]byte {
			return [][]byte{reply(op, []byte{1, 2, 3, 4})}
		})

		_, err := srv.session(WithTimeout(100 * time.Millisecond)).Ping(context.Background())
		assert.ErrorIs(t, err, ErrTimeout)
	})
}

func TestPingHistory(t *testing.T) {
	srv := newFakeServer(t, func(op byte, payload []byte) [][]byte {
		return [][]byte{reply(op, payload)}
	})

	start := time.Now()
	history, err := srv.session().PingHistory(context.Background(), 3, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	assert.Equal(t, []byte{OpPing, OpPing, OpPing}, srv.seen())
}

func TestIsOpenMP(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		srv := newFakeServer(t, func(op byte, payload []byte) [][]byte {
			return [][]byte{reply(op, payload)}
		})

		ok, err := srv.session().IsOpenMP(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte{OpPing, OpOpenMP}, srv.seen())
	})

	t.Run("silent", func(t *testing.T) {
		srv := newFakeServer(t, func(op byte, payload []byte) [][]byte {
			if op == OpPing {
				return [][]byte{reply(op, payload)}
			}
			return nil
		})

		start := time.Now()
		ok, err := srv.session(WithMinLatencyWait(50 * time.Millisecond)).IsOpenMP(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	})
}

func TestTimeoutAndContext(t *testing.T) {
	srv := newFakeServer(t, nil)

	t.Run("session timeout", func(t *testing.T) {
		_, err := srv.session(WithTimeout(50 * time.Millisecond)).Rules(context.Background())
		require.ErrorIs(t, err, ErrTimeout)

		var te *TimeoutError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, OpRules, te.Opcode)
	})

	t.Run("context deadline wins", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := srv.session(WithTimeout(5 * time.Second)).Info(ctx)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		_, err := srv.session(WithTimeout(5 * time.Second)).Info(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type stubResolver struct {
	err   error
	addrs []netip.Addr
}

func (r stubResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return r.addrs, r.err
}

func TestResolveError(t *testing.T) {
	s := New("nowhere.invalid", 7777, WithResolver(stubResolver{err: errors.New("no such host")}))
	defer s.Close()

	_, err := s.Info(context.Background())
	require.ErrorIs(t, err, ErrResolve)

	var re *ResolveError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "nowhere.invalid", re.Host)

	v6 := New("v6.only", 7777, WithResolver(stubResolver{addrs: []netip.Addr{netip.MustParseAddr("2001:db8::1")}}))
	defer v6.Close()

	_, err = v6.Ping(context.Background())
	assert.ErrorIs(t, err, ErrResolve)
}

func TestResolvedAddressFeedsPrefix(t *testing.T) {
	srv := newFakeServer(t, func(op byte, payload []byte) [][]byte {
		return [][]byte{reply(op, payload)}
	})

	s := New("game.example", srv.port,
		WithResolver(stubResolver{addrs: []netip.Addr{netip.MustParseAddr("::ffff:127.0.0.1")}}),
		WithNonceSource(func() uint32 { return testNonce }),
		WithTimeout(time.Second),
	)
	defer s.Close()

	_, err := s.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.prefix, s.Prefix())
}

func TestClosedSession(t *testing.T) {
	srv := newFakeServer(t, nil)
	s := srv.session()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Info(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, srv.seen())
}

func TestClosedPortUnreachable(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("ICMP port unreachable is reported on connected UDP sockets on linux")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	require.NoError(t, conn.Close())

	s := New("127.0.0.1", port, WithTimeout(time.Second))
	t.Cleanup(func() { _ = s.Close() })

	start := time.Now()
	_, err = s.Info(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}
