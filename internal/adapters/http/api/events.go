package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/internal/domain/reputation"
)

// EventDependencies defines the event operations used by EventsHandler.
type EventDependencies interface {
	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	CompleteEvent(ctx context.Context, eventID string) (reputation.Report, error)
	SubmitApplication(ctx context.Context, eventID, applicantID string) (model.Application, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

type createEventRequest struct {
	CreatorUserID string `json:"creator_user_id"`
	ImageURL      string `json:"image_url"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	Description   string `json:"description"`
	VolunteerForm string `json:"volunteer_form"`
	Category      string `json:"category"`
	OrgTitle      string `json:"org_title"`
	Country       string `json:"country"`
	Region        string `json:"region"`
	City          string `json:"city"`
}

func (r createEventRequest) validate() error {
	if strings.TrimSpace(r.CreatorUserID) == "" {
		return errors.New("missing creator_user_id")
	}
	return nil
}

func (r createEventRequest) event() model.Event {
	return model.Event{
		CreatorUserID: r.CreatorUserID,
		ImageURL:      r.ImageURL,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		Description:   r.Description,
		VolunteerForm: r.VolunteerForm,
		Category:      r.Category,
		OrgTitle:      r.OrgTitle,
		Country:       r.Country,
		Region:        r.Region,
		City:          r.City,
	}
}

type submitApplicationRequest struct {
	ApplicantUserID string `json:"applicant_user_id"`
}

type creditErrorResponse struct {
	ApplicationID string `json:"application_id"`
	UserID        string `json:"user_id,omitempty"`
	Error         string `json:"error"`
}

type completeResponse struct {
	EventID      string                `json:"event_id"`
	Outcome      reputation.Outcome    `json:"outcome"`
	Credited     int                   `json:"credited"`
	Skipped      int                   `json:"skipped"`
	CreditErrors []creditErrorResponse `json:"credit_errors"`
}

func newCompleteResponse(r reputation.Report) completeResponse {
	out := completeResponse{
		EventID:      r.EventID,
		Outcome:      r.Outcome,
		Credited:     r.Credited,
		Skipped:      r.Skipped,
		CreditErrors: make([]creditErrorResponse, 0, len(r.CreditErrors)),
	}
	for _, ce := range r.CreditErrors {
		out.CreditErrors = append(out.CreditErrors, creditErrorResponse{
			ApplicationID: ce.ApplicationID,
			UserID:        ce.UserID,
			Error:         ce.Cause.Error(),
		})
	}
	return out
}

// HandleCreate handles POST /events.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_event"
	var req createEventRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	if err := req.validate(); err != nil {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	ev, err := h.deps.CreateEvent(r.Context(), req.event())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// HandleGet handles GET /events/{id}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	ev, err := h.deps.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleDelete handles DELETE /events/{id}.
func (h *EventsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_event"
	id := r.PathValue("id")
	if err := h.deps.DeleteEvent(r.Context(), id); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event_id": id, "deleted": true})
}

// HandleComplete handles POST /events/{id}/complete. Partial credit is
// still a 200: the event is completed and the failures are listed.
func (h *EventsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete_event"
	report, err := h.deps.CompleteEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newCompleteResponse(report))
}

// HandleSubmitApplication handles POST /events/{id}/applications.
func (h *EventsHandler) HandleSubmitApplication(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_application"
	var req submitApplicationRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	if strings.TrimSpace(req.ApplicantUserID) == "" {
		writeFailure(w, op, WrapKind(op, ErrBadRequest, errors.New("missing applicant_user_id")))
		return
	}
	app, err := h.deps.SubmitApplication(r.Context(), r.PathValue("id"), req.ApplicantUserID)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}
