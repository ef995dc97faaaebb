package api

import (
	"github.com/MJE43/ebb-flow/internal/game"
	"github.com/MJE43/ebb-flow/internal/garden"
	"github.com/MJE43/ebb-flow/internal/profile"
	"github.com/MJE43/ebb-flow/internal/ranking"
)

// APIError is the body of every failed request.
type APIError struct {
	Status    string                 `json:"status"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types
const (
	ErrTypeValidation     = "validation_error"
	ErrTypeQuotaExceeded  = "quota_exceeded"
	ErrTypeNotFound       = "not_found"
	ErrTypeConflict       = "already_collected"
	ErrTypeUnauthorized   = "unauthorized"
	ErrTypeMalformedState = "malformed_state"
	ErrTypeTimeout        = "timeout"
	ErrTypeInternal       = "internal_error"
)

// ErrorCategory groups error types for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategoryAuth       ErrorCategory = "auth"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation:
		return CategoryValidation
	case ErrTypeQuotaExceeded, ErrTypeNotFound, ErrTypeConflict:
		return CategoryGame
	case ErrTypeUnauthorized:
		return CategoryAuth
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// InitResponse is returned by GET /api/init.
type InitResponse struct {
	Type                string                `json:"type"`
	UserStats           *profile.Profile      `json:"userStats"`
	Username            string                `json:"username"`
	CanPlay             bool                  `json:"canPlay"`
	DailyGamesRemaining int                   `json:"dailyGamesRemaining"`
	Leaderboard         []profile.Profile     `json:"leaderboard"`
	RecentGames         []ranking.GameSummary `json:"recentGames"`
	CommunityGarden     garden.Garden         `json:"communityGarden"`
}

// StartGameRequest is the body of POST /api/start-game.
type StartGameRequest struct {
	Difficulty string `json:"difficulty"`
}

// StartGameResponse is returned by POST /api/start-game.
type StartGameResponse struct {
	Type                string        `json:"type"`
	GameSession         *game.Session `json:"gameSession"`
	DailyGamesRemaining int           `json:"dailyGamesRemaining"`
}

// CollectLeafRequest is the body of POST /api/collect-leaf.
type CollectLeafRequest struct {
	LeafID string `json:"leafId"`
}

// CollectLeafResponse is returned by POST /api/collect-leaf.
type CollectLeafResponse struct {
	Type                string           `json:"type"`
	Result              game.Result      `json:"result"`
	UpdatedSession      *game.Session    `json:"updatedSession"`
	UpdatedUserStats    *profile.Profile `json:"updatedUserStats"`
	DailyGamesRemaining int              `json:"dailyGamesRemaining"`
}

// SessionResponse is returned by GET /api/session.
type SessionResponse struct {
	Type        string        `json:"type"`
	GameSession *game.Session `json:"gameSession"`
}

// LeaderboardResponse is returned by GET /api/leaderboard.
type LeaderboardResponse struct {
	Type        string            `json:"type"`
	Leaderboard []profile.Profile `json:"leaderboard"`
}

// RecentGamesResponse is returned by GET /api/recent-games.
type RecentGamesResponse struct {
	Type        string                `json:"type"`
	RecentGames []ranking.GameSummary `json:"recentGames"`
}

// GardenResponse is returned by GET /api/garden.
type GardenResponse struct {
	Type            string        `json:"type"`
	CommunityGarden garden.Garden `json:"communityGarden"`
}

// StatusResponse is the body of admin operations.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
