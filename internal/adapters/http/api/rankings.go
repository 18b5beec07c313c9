package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/volunteerfinder/reputation/internal/domain/model"
)

const defaultRankingLimit = 10

// RankingDependencies defines the ranking read.
type RankingDependencies interface {
	TopRankedUsers(ctx context.Context, n int) ([]model.User, error)
}

// RankingsHandler handles ranking requests.
type RankingsHandler struct {
	deps RankingDependencies
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps RankingDependencies) *RankingsHandler {
	return &RankingsHandler{deps: deps}
}

type rankingEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
	Badges   int    `json:"badges"`
}

// HandleGetRankings handles GET /rankings?limit=N. limit defaults to 10
// and is capped by the service.
func (h *RankingsHandler) HandleGetRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rankings"
	n := defaultRankingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeFailure(w, op, WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
		n = v
	}
	users, err := h.deps.TopRankedUsers(r.Context(), n)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	entries := make([]rankingEntry, len(users))
	for i, u := range users {
		entries[i] = rankingEntry{
			Rank:     i + 1,
			UserID:   u.UserID,
			Username: u.Username,
			Score:    u.ScoreValue(),
			Badges:   len(u.Badges),
		}
	}
	writeJSON(w, http.StatusOK, entries)
}
