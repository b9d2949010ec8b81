package runner

import (
	"encoding/base64"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/api"
)

// GamePayload is the replay data of one arena, sent base64 encoded in
// GameResult.GameData.
type GamePayload struct {
	OffenseTeamID string     `json:"offense_team_id"`
	DefenseTeamID string     `json:"defense_team_id"`
	Score         float64    `json:"score"`
	MaxMoveCount  int        `json:"max_move_count"`
	Seed          string     `json:"seed"`
	Steps         []api.Step `json:"steps"`
}

type GameData struct {
	Games []GamePayload `json:"games"`
}

// ArenaError describes what went wrong in one arena.
type ArenaError struct {
	OffenseTeamID string   `json:"offense_team_id"`
	DefenseTeamID string   `json:"defense_team_id"`
	EngineError   *string  `json:"engine_error"`
	OffenseLogs   []string `json:"offense_logs"`
	DefenseLogs   []string `json:"defense_logs"`
}

// ErrorData is sent base64 encoded in GameResult.ErrorData.
type ErrorData struct {
	Message string       `json:"message"`
	Arenas  []ArenaError `json:"arenas,omitempty"`
}

// encode returns v as base64 JSON, or nil if it cannot be marshaled.
func encode(v interface{}) *string {
	b, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("failed to encode result payload")
		return nil
	}
	s := base64.StdEncoding.EncodeToString(b)
	return &s
}

// errorResult reports a match that could not be played.
func errorResult(m *api.Match, message string) *api.GameResult {
	return &api.GameResult{
		ID:        m.ID,
		IsError:   true,
		ErrorData: encode(&ErrorData{Message: message}),
	}
}

// detailedErrorResult reports a match with per-arena engine errors and bot
// logs.
func detailedErrorResult(m *api.Match, message string, arenas []*Arena) *api.GameResult {
	data := &ErrorData{Message: message}
	for _, a := range arenas {
		ae := ArenaError{
			OffenseTeamID: a.Offense.ID,
			DefenseTeamID: a.Defense.ID,
			OffenseLogs:   nonNil(a.OffenseLogs),
			DefenseLogs:   nonNil(a.DefenseLogs),
		}
		if a.Status != nil && a.Status.GameData != nil {
			ae.EngineError = a.Status.GameData.ErrorMessage
		}
		data.Arenas = append(data.Arenas, ae)
	}
	return &api.GameResult{
		ID:        m.ID,
		IsError:   true,
		ErrorData: encode(data),
	}
}

// successResult scores a match from its two arenas. Team 1 plays offense
// in the first arena and team 2 in the second; the higher offense score
// wins.
func successResult(m *api.Match, arenas []*Arena) *api.GameResult {
	res := &api.GameResult{
		ID:         m.ID,
		Team1Score: arenas[0].Status.Score,
		Team2Score: arenas[1].Status.Score,
	}
	team1, team2 := m.Team1ID, m.Team2ID
	switch {
	case res.Team1Score > res.Team2Score:
		res.WinnerID = &team1
	case res.Team2Score > res.Team1Score:
		res.WinnerID = &team2
	}

	var data GameData
	for _, a := range arenas {
		g := GamePayload{
			OffenseTeamID: a.Offense.ID,
			DefenseTeamID: a.Defense.ID,
			Score:         a.Status.Score,
		}
		if gd := a.Status.GameData; gd != nil {
			g.MaxMoveCount = gd.MaxMoveCount
			g.Seed = gd.Seed
			g.Steps = gd.Steps
		}
		data.Games = append(data.Games, g)
	}
	res.GameData = encode(&data)
	return res
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
