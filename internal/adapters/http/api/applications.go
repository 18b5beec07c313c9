package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// ApplicationDependencies defines the review operation.
type ApplicationDependencies interface {
	ReviewApplication(ctx context.Context, appID string, status model.Status) (model.Application, error)
}

// ApplicationsHandler handles application review requests.
type ApplicationsHandler struct {
	deps ApplicationDependencies
}

// NewApplicationsHandler creates a new applications handler.
func NewApplicationsHandler(deps ApplicationDependencies) *ApplicationsHandler {
	return &ApplicationsHandler{deps: deps}
}

type reviewRequest struct {
	Status model.Status `json:"status"`
}

// HandleReview handles POST /applications/{id}/review.
func (h *ApplicationsHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	const op = "api.review_application"
	var req reviewRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	if req.Status != model.StatusAccepted && req.Status != model.StatusRejected {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, fmt.Errorf("status %q must be accepted or rejected", req.Status)))
		return
	}
	app, err := h.deps.ReviewApplication(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}
