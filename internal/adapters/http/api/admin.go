package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/volunteerfinder/reputation/internal/domain/reputation"
)

// AdminDependencies defines maintenance operations.
type AdminDependencies interface {
	ResetAllScores(ctx context.Context) (int, error)
}

// AdminHandler handles maintenance requests.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type resetResponse struct {
	Updated int      `json:"updated"`
	Errors  []string `json:"errors,omitempty"`
}

// HandleResetScores handles POST /admin/scores/reset. A partial reset is
// still a 200: the applied writes are counted and the failures listed.
func (h *AdminHandler) HandleResetScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.reset_scores"
	n, err := h.deps.ResetAllScores(r.Context())
	var partial *reputation.ResetError
	switch {
	case errors.As(err, &partial):
		resp := resetResponse{Updated: n, Errors: make([]string, 0, len(partial.Errors))}
		for _, e := range partial.Errors {
			resp.Errors = append(resp.Errors, e.Error())
		}
		writeJSON(w, http.StatusOK, resp)
	case err != nil:
		writeFailure(w, op, err)
	default:
		writeJSON(w, http.StatusOK, resetResponse{Updated: n})
	}
}
