package samp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

// Lagcomp is the hit-detection mode inferred from the lagcomp rule.
type Lagcomp string

const (
	// Skinshot means lag compensation is on.
	Skinshot Lagcomp = "skinshot"

	// Lagshot means lag compensation is off.
	Lagshot Lagcomp = "lagshot"
)

// Info requests the server information.
func (s *Session) Info(ctx context.Context) (ServerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.info(ctx)
}

// Players requests the basic roster. The server information is fetched first: servers above
// PlayerQueryLimit do not answer roster queries, so the request is not sent at all for them.
func (s *Session) Players(ctx context.Context) (PlayerList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := s.roster(ctx, OpPlayers)
	if err != nil {
		return nil, err
	}

	return DecodePlayerList(body)
}

// DetailedPlayers requests the roster with ids and pings. Same limit as Players.
func (s *Session) DetailedPlayers(ctx context.Context) (DetailedPlayerList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.detailedPlayers(ctx)
}

// Rules requests the rule table.
func (s *Session) Rules(ctx context.Context) (RuleList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rules(ctx)
}

// Ping measures one round trip.
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ping(ctx)
}

// IsOpenMP reports whether the server answers the open.mp probe within K × ping.
// Silence is a negative answer, not an error.
func (s *Session) IsOpenMP(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rtt, err := s.ping(ctx)
	if err != nil {
		return false, err
	}

	nonce := s.noncePayload()
	budget := s.latencyBudget(rtt)
	body, err := s.exchange(ctx, OpOpenMP, nonce, nonce, time.Now().Add(budget))
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			s.logger.Debug().Dur("budget", budget).Msg("No open.mp probe reply")
			return false, nil
		}
		return false, err
	}
	if err := wire.ExpectEmpty("open.mp probe", body); err != nil {
		return false, err
	}

	return true, nil
}

// Lagcomp infers the hit-detection mode from the lagcomp rule.
func (s *Session) Lagcomp(ctx context.Context) (Lagcomp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.rules(ctx)
	if err != nil {
		return "", err
	}

	rule, ok := rules.Get("lagcomp")
	if !ok {
		return "", &LagcompError{Missing: true}
	}

	switch {
	case strings.EqualFold(rule.Value, "on"):
		return Skinshot, nil
	case strings.EqualFold(rule.Value, "off"):
		return Lagshot, nil
	default:
		return "", &LagcompError{Value: rule.Value}
	}
}

// PingHistory takes samples pings spaced at least interval apart. It stops at the first failure
// and returns the samples collected so far together with the error.
func (s *Session) PingHistory(ctx context.Context, samples int, interval time.Duration) ([]time.Duration, error) {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	history := make([]time.Duration, 0, max(samples, 0))
	for i := 0; i < samples; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return history, err
		}

		rtt, err := s.Ping(ctx)
		if err != nil {
			return history, fmt.Errorf("ping sample %d: %w", i+1, err)
		}
		history = append(history, rtt)
	}

	return history, nil
}

// FreeSlots returns how many more players the server accepts.
func (s *Session) FreeSlots(ctx context.Context) (int, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return 0, err
	}

	return info.FreeSlots(), nil
}

// PlayersWithScore returns the detailed roster entries with a score of at least minScore.
func (s *Session) PlayersWithScore(ctx context.Context, minScore int32) (DetailedPlayerList, error) {
	players, err := s.DetailedPlayers(ctx)
	if err != nil {
		return nil, err
	}

	out := make(DetailedPlayerList, 0, len(players))
	for _, p := range players {
		if p.Score >= minScore {
			out = append(out, p)
		}
	}

	return out, nil
}

// ServerVersion returns the value of the version rule.
func (s *Session) ServerVersion(ctx context.Context) (string, error) {
	rules, err := s.Rules(ctx)
	if err != nil {
		return "", err
	}

	rule, ok := rules.Get("version")
	if !ok {
		return "", &RuleNotFoundError{Name: "version"}
	}

	return rule.Value, nil
}

func (s *Session) info(ctx context.Context) (ServerInfo, error) {
	body, err := s.exchange(ctx, OpInfo, nil, nil, s.deadline())
	if err != nil {
		return ServerInfo{}, err
	}

	return DecodeServerInfo(body)
}

func (s *Session) rules(ctx context.Context) (RuleList, error) {
	body, err := s.exchange(ctx, OpRules, nil, nil, s.deadline())
	if err != nil {
		return nil, err
	}

	return DecodeRuleList(body)
}

func (s *Session) detailedPlayers(ctx context.Context) (DetailedPlayerList, error) {
	body, err := s.roster(ctx, OpDetailedPlayers)
	if err != nil {
		return nil, err
	}

	return DecodeDetailedPlayerList(body)
}

// roster checks the population limit, then runs the roster query identified by opcode.
func (s *Session) roster(ctx context.Context, opcode byte) ([]byte, error) {
	info, err := s.info(ctx)
	if err != nil {
		return nil, err
	}
	if int(info.Players) > PlayerQueryLimit {
		return nil, &TooManyPlayersError{Players: int(info.Players), Limit: PlayerQueryLimit}
	}

	return s.exchange(ctx, opcode, nil, nil, s.deadline())
}

func (s *Session) ping(ctx context.Context) (time.Duration, error) {
	nonce := s.noncePayload()
	start := time.Now()

	body, err := s.exchange(ctx, OpPing, nonce, nonce, start.Add(s.timeout))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	if err := wire.ExpectEmpty("ping", body); err != nil {
		return 0, err
	}

	return rtt, nil
}

func (s *Session) deadline() time.Time {
	return time.Now().Add(s.timeout)
}
