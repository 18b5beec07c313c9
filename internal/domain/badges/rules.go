// Package badges evaluates a static table of achievement rules against a
// user's persisted counters.
package badges

import "github.com/volunteerfinder/reputation/internal/domain/model"

// Metric selects the user counter a rule compares against.
type Metric string

// Supported metrics.
const (
	MetricEventsCreated   Metric = "events_created"   // len(user.events)
	MetricEventsCompleted Metric = "events_completed" // user.completed_events
	MetricScore           Metric = "score"            // user.score
)

// Value reads the metric from u. Unknown metrics read as zero.
func (m Metric) Value(u model.User) int64 {
	switch m {
	case MetricEventsCreated:
		return int64(len(u.Events))
	case MetricEventsCompleted:
		return u.CompletedEventsValue()
	case MetricScore:
		return u.ScoreValue()
	default:
		return 0
	}
}

// Rule awards Badge once Metric reaches Threshold.
type Rule struct {
	Metric    Metric
	Threshold int64
	Badge     model.Badge
}

// Matches reports whether u satisfies the rule's predicate.
func (r Rule) Matches(u model.User) bool {
	return r.Threshold > 0 && r.Metric.Value(u) >= r.Threshold
}

// DefaultRules is the process-wide badge table. Order is significant:
// Evaluate reports newly earned badges in this order.
var DefaultRules = []Rule{
	{MetricEventsCreated, 1, model.Badge{Name: "Event Creator First Steps", Description: "Created 1 events"}},
	{MetricEventsCreated, 5, model.Badge{Name: "Event Creator Amateur", Description: "Created 5 events"}},
	{MetricEventsCreated, 10, model.Badge{Name: "Event Creator Veteran", Description: "Created 10 events"}},
	{MetricEventsCreated, 20, model.Badge{Name: "Event Creator Legend", Description: "Created 20 events"}},

	{MetricEventsCompleted, 1, model.Badge{Name: "Event Completer First Steps", Description: "Completed 1 events"}},
	{MetricEventsCompleted, 5, model.Badge{Name: "Event Completer Amateur", Description: "Completed 5 events"}},
	{MetricEventsCompleted, 10, model.Badge{Name: "Event Completer Veteran", Description: "Completed 10 events"}},
	{MetricEventsCompleted, 20, model.Badge{Name: "Event Completer Legend", Description: "Completed 20 events"}},

	{MetricScore, 1, model.Badge{Name: "Volunteering First Steps", Description: "Volunteered in 1 events"}},
	{MetricScore, 5, model.Badge{Name: "Volunteering Amateur", Description: "Volunteered in 5 events"}},
	{MetricScore, 10, model.Badge{Name: "Volunteering Veteran", Description: "Volunteered in 10 events"}},
	{MetricScore, 20, model.Badge{Name: "Volunteering Legend", Description: "Volunteered in 20 events"}},
}
