// Package model contains domain models passed between layers.
//
// JSON and BSON field names are the persisted wire contract shared with
// the rest of the marketplace and must not be renamed.
package model

// Event is a volunteering event posted by an organizer.
type Event struct {
	EventID       string   `json:"event_id" bson:"event_id"`
	CreatorUserID string   `json:"creator_user_id" bson:"creator_user_id"`
	ImageURL      string   `json:"image_url" bson:"image_url"`
	StartDate     string   `json:"start_date" bson:"start_date"`
	EndDate       string   `json:"end_date" bson:"end_date"`
	Description   string   `json:"description" bson:"description"`
	VolunteerForm string   `json:"volunteer_form" bson:"volunteer_form"`
	Applications  []string `json:"applications" bson:"applications"` // frozen once Completed
	Hits          int64    `json:"hits" bson:"hits"`
	Category      string   `json:"category" bson:"category"`
	OrgTitle      string   `json:"org_title" bson:"org_title"`
	Country       string   `json:"country" bson:"country"`
	Region        string   `json:"region" bson:"region"`
	City          string   `json:"city" bson:"city"`
	Completed     bool     `json:"completed" bson:"completed"` // false -> true only
}

// Clone returns a deep copy so stores never share slices with callers.
func (e Event) Clone() Event {
	e.Applications = cloneStrings(e.Applications)
	return e
}

// Status is the review state of an application.
type Status string

// Application review states.
const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Application links a volunteer to an event.
type Application struct {
	ApplicationID   string `json:"application_id" bson:"application_id"`
	ApplicantUserID string `json:"applicant_user_id" bson:"applicant_user_id"`
	EventID         string `json:"event_id" bson:"event_id"`
	Status          Status `json:"status" bson:"status"`
}

// Accepted reports whether the application earns its applicant a point.
func (a Application) Accepted() bool { return a.Status == StatusAccepted }

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
