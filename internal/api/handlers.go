package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/ebb-flow/internal/game"
	"github.com/MJE43/ebb-flow/internal/ranking"
)

const maxBodyBytes = 1 << 16

// decodeBody reads a small JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	player := playerName(r)

	ov, err := s.manager.Initialize(r.Context(), player)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, InitResponse{
		Type:                "init",
		UserStats:           ov.Profile,
		Username:            player,
		CanPlay:             ov.Quota.Allowed,
		DailyGamesRemaining: ov.Quota.Remaining,
		Leaderboard:         ov.Leaderboard,
		RecentGames:         ov.RecentGames,
		CommunityGarden:     ov.Garden,
	})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	player := playerName(r)

	var req StartGameRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.Difficulty) == "" {
		s.errorHandler.HandleValidationError(w, r, "difficulty", "Valid difficulty is required (easy, medium, hard)")
		return
	}
	d, err := game.ParseDifficulty(req.Difficulty)
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "difficulty", "Valid difficulty is required (easy, medium, hard)")
		return
	}

	session, quota, err := s.manager.StartSession(r.Context(), player, d)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.securityLogger.LogAuditEvent(
		middleware.GetReqID(r.Context()),
		"start_game",
		"session",
		"success",
		map[string]interface{}{
			"player":     player,
			"session_id": session.ID,
			"difficulty": d,
			"remaining":  quota.Remaining,
		},
	)

	s.writeJSON(w, http.StatusOK, StartGameResponse{
		Type:                "start",
		GameSession:         session,
		DailyGamesRemaining: quota.Remaining,
	})
}

func (s *Server) handleCollectLeaf(w http.ResponseWriter, r *http.Request) {
	player := playerName(r)

	var req CollectLeafRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.LeafID) == "" {
		s.errorHandler.HandleValidationError(w, r, "leafId", "leafId is required")
		return
	}

	out, err := s.manager.CollectLeaf(r.Context(), player, req.LeafID)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	quota, err := s.manager.Quota(r.Context(), player)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, CollectLeafResponse{
		Type:                "collect",
		Result:              out.Result,
		UpdatedSession:      out.Session,
		UpdatedUserStats:    out.Profile,
		DailyGamesRemaining: quota.Remaining,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.RefreshSession(r.Context(), playerName(r))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{Type: "session", GameSession: session})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.manager.Leaderboard(r.Context(), ranking.DefaultLeaderboardSize)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{Type: "leaderboard", Leaderboard: board})
}

func (s *Server) handleRecentGames(w http.ResponseWriter, r *http.Request) {
	limit := ranking.RecentCap
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.errorHandler.HandleValidationError(w, r, "limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	games, err := s.manager.RecentGames(r.Context(), limit)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RecentGamesResponse{Type: "recent", RecentGames: games})
}

func (s *Server) handleGarden(w http.ResponseWriter, r *http.Request) {
	g, err := s.manager.Garden(r.Context())
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, GardenResponse{Type: "garden", CommunityGarden: g})
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	player := playerName(r)

	if err := s.manager.ResetQuota(r.Context(), player); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.securityLogger.LogAuditEvent(
		middleware.GetReqID(r.Context()),
		"reset_stats",
		"quota",
		"success",
		map[string]interface{}{"player": player},
	)

	msg := fmt.Sprintf("Daily games reset for user %s", player)
	if player == anonymous {
		msg = "Daily games reset for anonymous user"
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Status: "success", Message: msg})
}
