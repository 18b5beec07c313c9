package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	service "github.com/volunteerfinder/reputation/internal/app"
	"github.com/volunteerfinder/reputation/internal/domain/model"
)

// UserDependencies defines the user operations used by UsersHandler.
type UserDependencies interface {
	CreateUser(ctx context.Context, in service.CreateUserInput) (model.User, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	RefreshBadges(ctx context.Context, userID string) (bool, []model.Badge, error)
}

// UsersHandler handles user requests.
type UsersHandler struct {
	deps UserDependencies
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps UserDependencies) *UsersHandler {
	return &UsersHandler{deps: deps}
}

type createUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       int    `json:"age"`
	Sex       string `json:"sex"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

func (r createUserRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return errors.New("missing username")
	case strings.TrimSpace(r.Email) == "":
		return errors.New("missing email")
	}
	return nil
}

// userResponse is a user without its password.
type userResponse struct {
	UserID          string        `json:"user_id"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	Age             int           `json:"age"`
	Sex             string        `json:"sex"`
	Email           string        `json:"email"`
	Username        string        `json:"username"`
	Applications    []string      `json:"applications"`
	Events          []string      `json:"events"`
	Score           int64         `json:"score"`
	CompletedEvents int64         `json:"completed_events"`
	Badges          []model.Badge `json:"badges"`
}

func newUserResponse(u model.User) userResponse {
	out := userResponse{
		UserID:          u.UserID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Age:             u.Age,
		Sex:             u.Sex,
		Email:           u.Email,
		Username:        u.Username,
		Applications:    u.Applications,
		Events:          u.Events,
		Score:           u.ScoreValue(),
		CompletedEvents: u.CompletedEventsValue(),
		Badges:          u.Badges,
	}
	if out.Applications == nil {
		out.Applications = []string{}
	}
	if out.Events == nil {
		out.Events = []string{}
	}
	if out.Badges == nil {
		out.Badges = []model.Badge{}
	}
	return out
}

type refreshResponse struct {
	UserID  string        `json:"user_id"`
	Updated bool          `json:"updated"`
	Badges  []model.Badge `json:"badges"`
}

// HandleCreate handles POST /users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_user"
	var req createUserRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	if err := req.validate(); err != nil {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	u, err := h.deps.CreateUser(r.Context(), service.CreateUserInput(req))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(u))
}

// HandleGet handles GET /users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_user"
	u, err := h.deps.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// HandleRefreshBadges handles POST /users/{id}/badges/refresh.
func (h *UsersHandler) HandleRefreshBadges(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_badges"
	id := r.PathValue("id")
	updated, held, err := h.deps.RefreshBadges(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if held == nil {
		held = []model.Badge{}
	}
	writeJSON(w, http.StatusOK, refreshResponse{UserID: id, Updated: updated, Badges: held})
}
