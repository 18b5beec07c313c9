package model

// Badge is an immutable achievement copied into the owning user.
type Badge struct {
	Name        string `json:"name" bson:"name"`
	Description string `json:"description" bson:"description"`
}

// User is a marketplace member: volunteer, organizer, or both.
//
// Score and CompletedEvents are pointers because older records may not
// carry the fields at all, and the reset job treats "absent" and "zero"
// alike.
type User struct {
	UserID          string   `json:"user_id" bson:"user_id"`
	FirstName       string   `json:"first_name" bson:"first_name"`
	LastName        string   `json:"last_name" bson:"last_name"`
	Age             int      `json:"age" bson:"age"`
	Sex             string   `json:"sex" bson:"sex"`
	Email           string   `json:"email" bson:"email"`
	Username        string   `json:"username" bson:"username"`
	Password        string   `json:"password" bson:"password"` // hashed upstream, opaque here
	Applications    []string `json:"applications" bson:"applications"`
	Events          []string `json:"events" bson:"events"`
	Score           *int64   `json:"score,omitempty" bson:"score,omitempty"`
	CompletedEvents *int64   `json:"completed_events,omitempty" bson:"completed_events,omitempty"`
	Badges          []Badge  `json:"badges,omitempty" bson:"badges,omitempty"` // unique by name, earn order
}

// ScoreValue returns the score, treating an absent field as zero.
func (u User) ScoreValue() int64 {
	if u.Score == nil {
		return 0
	}
	return *u.Score
}

// CompletedEventsValue returns the organizer counter, absent as zero.
func (u User) CompletedEventsValue() int64 {
	if u.CompletedEvents == nil {
		return 0
	}
	return *u.CompletedEvents
}

// HasBadge reports whether the user already holds a badge named name.
func (u User) HasBadge(name string) bool {
	for _, b := range u.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of u.
func (u User) Clone() User {
	u.Applications = cloneStrings(u.Applications)
	u.Events = cloneStrings(u.Events)
	if u.Score != nil {
		u.Score = Int64(*u.Score)
	}
	if u.CompletedEvents != nil {
		u.CompletedEvents = Int64(*u.CompletedEvents)
	}
	if u.Badges != nil {
		badges := make([]Badge, len(u.Badges))
		copy(badges, u.Badges)
		u.Badges = badges
	}
	return u
}

// Counter names a numeric user field that is only ever changed through
// atomic increments.
type Counter string

// Incrementable user counters.
const (
	CounterScore           Counter = "score"
	CounterCompletedEvents Counter = "completed_events"
)

// Valid reports whether c is a known counter.
func (c Counter) Valid() bool {
	return c == CounterScore || c == CounterCompletedEvents
}

// RefList names an id list on a user that supports array add/remove.
type RefList string

// User reference lists.
const (
	RefEvents       RefList = "events"
	RefApplications RefList = "applications"
)

// Valid reports whether r is a known reference list.
func (r RefList) Valid() bool {
	return r == RefEvents || r == RefApplications
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
