package samp

import (
	"fmt"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

// Player is one entry of the basic ('c') roster.
type Player struct {
	Name  string `json:"name"`
	Score int32  `json:"score"`
}

// DetailedPlayer is one entry of the detailed ('d') roster.
type DetailedPlayer struct {
	Name  string `json:"name"`
	Score int32  `json:"score"`
	Ping  uint32 `json:"ping"`
	ID    uint8  `json:"id"`
}

// PlayerList is the basic roster in server order.
type PlayerList []Player

// DetailedPlayerList is the detailed roster in server order.
type DetailedPlayerList []DetailedPlayer

// DecodePlayerList parses a 'c' body.
func DecodePlayerList(data []byte) (PlayerList, error) {
	players, rest, err := wire.UnpackCountedList(data, 2, decodePlayer)
	if err != nil {
		return nil, fmt.Errorf("players: %w", err)
	}
	if err := wire.ExpectEmpty("players", rest); err != nil {
		return nil, err
	}

	return players, nil
}

// DecodeDetailedPlayerList parses a 'd' body.
func DecodeDetailedPlayerList(data []byte) (DetailedPlayerList, error) {
	players, rest, err := wire.UnpackCountedList(data, 2, decodeDetailedPlayer)
	if err != nil {
		return nil, fmt.Errorf("detailed players: %w", err)
	}
	if err := wire.ExpectEmpty("detailed players", rest); err != nil {
		return nil, err
	}

	return players, nil
}

func decodePlayer(data []byte) (Player, []byte, error) {
	var p Player

	name, rest, _, err := wire.UnpackString(data, 1)
	if err != nil {
		return p, data, err
	}
	score, rest, err := wire.UnpackFixed[int32](rest)
	if err != nil {
		return p, data, err
	}

	p.Name, p.Score = name, score
	return p, rest, nil
}

func decodeDetailedPlayer(data []byte) (DetailedPlayer, []byte, error) {
	var p DetailedPlayer

	id, rest, err := wire.UnpackFixed[uint8](data)
	if err != nil {
		return p, data, err
	}
	name, rest, _, err := wire.UnpackString(rest, 1)
	if err != nil {
		return p, data, err
	}
	score, rest, err := wire.UnpackFixed[int32](rest)
	if err != nil {
		return p, data, err
	}
	ping, rest, err := wire.UnpackFixed[uint32](rest)
	if err != nil {
		return p, data, err
	}

	p.ID, p.Name, p.Score, p.Ping = id, name, score, ping
	return p, rest, nil
}
