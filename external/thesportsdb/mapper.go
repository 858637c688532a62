package thesportsdb

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/riskibarqy/footybot-roster/internal/domain/rawdata"
	"github.com/riskibarqy/footybot-roster/internal/domain/roster"
	"github.com/riskibarqy/footybot-roster/internal/usecase"
)

const (
	providerSource        = "thesportsdb"
	entityTypeTeamPlayers = "team_players"
)

func mapPlayers(items []rawPlayer) []usecase.ExternalPlayer {
	out := make([]usecase.ExternalPlayer, 0, len(items))
	for _, item := range items {
		out = append(out, mapPlayer(item))
	}
	return out
}

func mapPlayer(item rawPlayer) usecase.ExternalPlayer {
	return usecase.ExternalPlayer{
		ID:          string(item.IDPlayer),
		Name:        item.StrPlayer,
		Position:    item.StrPosition,
		Team:        item.StrTeam,
		ThumbURL:    strings.TrimSpace(item.StrThumb),
		Nationality: item.StrNationality,
		Number:      string(item.StrNumber),
	}
}

func buildTeamPayload(team roster.TeamName, raw []byte, fetchedAt time.Time) *rawdata.Payload {
	sum := sha256.Sum256(raw)
	return &rawdata.Payload{
		Source:      providerSource,
		EntityType:  entityTypeTeamPlayers,
		EntityKey:   string(team),
		PayloadJSON: string(raw),
		PayloadHash: hex.EncodeToString(sum[:]),
		FetchedAt:   fetchedAt.UTC(),
	}
}
