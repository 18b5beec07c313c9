package badges_test

import (
	"fmt"
	"testing"

	"github.com/volunteerfinder/reputation/internal/domain/badges"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func userWithEvents(n int) model.User {
	u := model.User{UserID: "u"}
	for i := 0; i < n; i++ {
		u.Events = append(u.Events, fmt.Sprintf("e%d", i))
	}
	return u
}

func names(bs []model.Badge) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Name)
	}
	return out
}

func TestEngine_Evaluate(t *testing.T) {
	Convey("Given the default badge engine", t, func() {
		engine := badges.NewEngine()

		Convey("When a user has created five events", func() {
			u := userWithEvents(5)
			got := names(engine.Evaluate(u))

			Convey("Then the amateur creator badge is earned but not the veteran one", func() {
				So(got, ShouldContain, "Event Creator Amateur")
				So(got, ShouldNotContain, "Event Creator Veteran")
				So(got, ShouldResemble, []string{"Event Creator First Steps", "Event Creator Amateur"})
			})
		})

		Convey("When a user has nothing", func() {
			So(engine.Evaluate(model.User{UserID: "empty"}), ShouldBeEmpty)
		})

		Convey("When a user has no score field at all", func() {
			u := model.User{UserID: "legacy", CompletedEvents: model.Int64(1)}

			Convey("Then no volunteering badge is proposed", func() {
				So(names(engine.Evaluate(u)), ShouldResemble, []string{"Event Completer First Steps"})
			})
		})

		Convey("When a user qualifies across several metrics", func() {
			u := userWithEvents(1)
			u.CompletedEvents = model.Int64(5)
			u.Score = model.Int64(10)

			Convey("Then the output follows the rule table order", func() {
				So(names(engine.Evaluate(u)), ShouldResemble, []string{
					"Event Creator First Steps",
					"Event Completer First Steps",
					"Event Completer Amateur",
					"Volunteering First Steps",
					"Volunteering Amateur",
					"Volunteering Veteran",
				})
			})
		})

		Convey("When a user already holds some qualifying badges", func() {
			u := userWithEvents(10)
			u.Badges = []model.Badge{{Name: "Event Creator First Steps", Description: "Created 1 events"}}

			Convey("Then held badges are never proposed again", func() {
				So(names(engine.Evaluate(u)), ShouldResemble, []string{"Event Creator Amateur", "Event Creator Veteran"})
			})
		})

		Convey("When evaluating the same user twice", func() {
			u := userWithEvents(20)
			u.Score = model.Int64(3)
			first := engine.Evaluate(u)
			second := engine.Evaluate(u)

			Convey("Then the results are identical and the user is unchanged", func() {
				So(second, ShouldResemble, first)
				So(u.Badges, ShouldBeNil)
			})
		})
	})

	Convey("Given a custom table with a duplicate badge name", t, func() {
		b := model.Badge{Name: "Helper", Description: "Helped"}
		engine := badges.NewEngine(
			badges.Rule{Metric: badges.MetricScore, Threshold: 1, Badge: b},
			badges.Rule{Metric: badges.MetricEventsCreated, Threshold: 1, Badge: b},
		)
		u := userWithEvents(1)
		u.Score = model.Int64(1)

		Convey("Then the badge is proposed once", func() {
			So(engine.Evaluate(u), ShouldResemble, []model.Badge{b})
		})
	})

	Convey("Given rules with a zero threshold", t, func() {
		engine := badges.NewEngine(badges.Rule{Metric: badges.MetricScore, Badge: model.Badge{Name: "Free"}})

		Convey("Then they never fire", func() {
			So(engine.Evaluate(model.User{Score: model.Int64(0)}), ShouldBeEmpty)
		})
	})
}

func TestMissing(t *testing.T) {
	Convey("Given held and earned badges that overlap", t, func() {
		held := []model.Badge{{Name: "A"}, {Name: "B"}}
		earned := []model.Badge{{Name: "B"}, {Name: "C"}, {Name: "C"}}

		Convey("Then missing lists only the new names", func() {
			So(names(badges.Missing(held, earned)), ShouldResemble, []string{"C"})
		})
	})
}

func TestEngine_RulesCopy(t *testing.T) {
	Convey("Given an engine", t, func() {
		engine := badges.NewEngine()
		rules := engine.Rules()
		rules[0].Threshold = 1000

		Convey("Then mutating the returned table does not affect evaluation", func() {
			So(names(engine.Evaluate(userWithEvents(1))), ShouldResemble, []string{"Event Creator First Steps"})
		})
	})
}
