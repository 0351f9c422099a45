package samp

import (
	"fmt"

	"github.com/woozymasta/sampq/pkg/samp/wire"
)

// ServerInfo is the reply to an info ('i') query.
type ServerInfo struct {
	Name       string        `json:"name"`
	Gamemode   string        `json:"gamemode"`
	Language   string        `json:"language"`
	Encodings  InfoEncodings `json:"encodings"`
	Players    uint16        `json:"players"`
	MaxPlayers uint16        `json:"max_players"`
	Password   bool          `json:"password"`
}

// InfoEncodings records which character set each ServerInfo string was decoded with.
type InfoEncodings struct {
	Name     wire.Encoding `json:"name"`
	Gamemode wire.Encoding `json:"gamemode"`
	Language wire.Encoding `json:"language"`
}

// FreeSlots returns how many more players the server accepts, never below zero.
func (i ServerInfo) FreeSlots() int {
	return max(int(i.MaxPlayers)-int(i.Players), 0)
}

// DecodeServerInfo parses an info body: password flag, player count, max players, then
// hostname, gamemode and language, each with a 4-byte length.
func DecodeServerInfo(data []byte) (ServerInfo, error) {
	var (
		info ServerInfo
		err  error
	)

	password, rest, err := wire.UnpackFixed[uint8](data)
	if err != nil {
		return info, fmt.Errorf("info password: %w", err)
	}
	info.Password = password != 0

	if info.Players, rest, err = wire.UnpackFixed[uint16](rest); err != nil {
		return info, fmt.Errorf("info players: %w", err)
	}
	if info.MaxPlayers, rest, err = wire.UnpackFixed[uint16](rest); err != nil {
		return info, fmt.Errorf("info max players: %w", err)
	}

	if info.Name, rest, info.Encodings.Name, err = wire.UnpackString(rest, 4); err != nil {
		return info, fmt.Errorf("info name: %w", err)
	}
	if info.Gamemode, rest, info.Encodings.Gamemode, err = wire.UnpackString(rest, 4); err != nil {
		return info, fmt.Errorf("info gamemode: %w", err)
	}
	if info.Language, rest, info.Encodings.Language, err = wire.UnpackString(rest, 4); err != nil {
		return info, fmt.Errorf("info language: %w", err)
	}

	if err := wire.ExpectEmpty("info", rest); err != nil {
		return ServerInfo{}, err
	}

	return info, nil
}
