package api

import (
	"github.com/cmars/mazewar/grid"
)

// OffenseBot is a bot playing the side that walks to the goal.
type OffenseBot interface {
	Start(*StartRequest) error
	Move(view *grid.Grid) (OffenseMove, error)
	End() error
}

// DefenseBot is a bot playing the side that places walls and bombs.
type DefenseBot interface {
	Start(*StartRequest) error
	Move(view *grid.Grid) (DefenseMove, error)
	End() error
}

// Everything below is wire format shared by the bots, the engine and the
// match queue service.

type StartRequest struct {
	IsOffense         bool              `json:"is_offense"`
	MaxMoves          *int              `json:"max_moves,omitempty"`
	NWalls            *int              `json:"n_walls,omitempty"`
	ElementTypesColor map[string]string `json:"element_types_color"`
}

type NextMoveRequest struct {
	Map string `json:"map"`
}

type OffenseMoveResponse struct {
	Move string `json:"move"`
}

type DefenseMoveResponse struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Element string `json:"element"`
}

// Step is one round of a match as recorded by the engine.
type Step struct {
	Round          int                  `json:"round"`
	Map            [][]grid.ElementType `json:"map"`
	Score          int                  `json:"score"`
	VisionRadius   int                  `json:"visionRadius"`
	AvailableMoves int                  `json:"availableMoves"`
	Logs           []string             `json:"logs"`
}

type GameData struct {
	Steps        []Step        `json:"steps"`
	ErrorMessage *string       `json:"errorMessage"`
	MaxMoveCount int           `json:"maxMoveCount"`
	Seed         string        `json:"seed"`
	Width        int           `json:"width"`
	Height       int           `json:"height"`
	Goal         grid.Position `json:"goal"`
}

type Status struct {
	IsRunning bool      `json:"isRunning"`
	IsOver    bool      `json:"isOver"`
	Score     float64   `json:"score"`
	GameData  *GameData `json:"gameData"`
}

type RunGameResponse struct {
	Status string `json:"status"`
	Seed   string `json:"seed,omitempty"`
}

type Match struct {
	ID         string `json:"id"`
	Team1ID    string `json:"team1_id"`
	Team2ID    string `json:"team2_id"`
	ImageTeam1 string `json:"image_team1"`
	ImageTeam2 string `json:"image_team2"`
}

type PopResponse struct {
	Matches             []Match `json:"matches"`
	MaxConcurrentMatch  int     `json:"maxConcurrentMatch"`
	MatchTimeoutSeconds int     `json:"matchTimeoutSeconds"`
}

type GameResult struct {
	ID         string  `json:"id"`
	WinnerID   *string `json:"winner_id"`
	IsError    bool    `json:"is_error"`
	Team1Score float64 `json:"team1_score"`
	Team2Score float64 `json:"team2_score"`
	ErrorData  *string `json:"error_data"`
	GameData   *string `json:"game_data"`
}
