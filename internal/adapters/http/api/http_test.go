package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/volunteerfinder/reputation/internal/adapters/http/api"
	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	service "github.com/volunteerfinder/reputation/internal/app"
	"github.com/volunteerfinder/reputation/internal/domain/model"
	"github.com/volunteerfinder/reputation/internal/domain/reputation"
)

func newMux(svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func createUser(mux http.Handler, name string) string {
	w := do(mux, http.MethodPost, "/users", `{"username":"`+name+`","email":"`+name+`@example.org","password":"x"}`)
	So(w.Code, ShouldEqual, http.StatusCreated)
	var u map[string]any
	decodeBody(w, &u)
	return u["user_id"].(string)
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server over a memory-backed service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithAutoRefreshBadges(false), service.WithMaxRankingLimit(2))
		defer func() { _ = svc.Stop(ctx) }()
		mux := newMux(svc)

		Convey("Health, stats and metrics respond", func() {
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/stats", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Users are created without echoing the password", func() {
			w := do(mux, http.MethodPost, "/users", `{"username":"ann","email":"ann@example.org","password":"secret"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldNotContainSubstring, "secret")
			So(w.Body.String(), ShouldContainSubstring, `"score":0`)
		})

		Convey("Bad bodies are rejected", func() {
			So(do(mux, http.MethodPost, "/users", `{"username":"ann"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/users", `not json`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/events", `{}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Unknown records are 404", func() {
			So(do(mux, http.MethodGet, "/users/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/events/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodDelete, "/events/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/users/nope/badges/refresh", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/applications/nope/review", `{"status":"accepted"}`).Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/events", `{"creator_user_id":"ghost"}`).Code, ShouldEqual, http.StatusNotFound)

			w := do(mux, http.MethodPost, "/events/nope/complete", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			var body map[string]string
			decodeBody(w, &body)
			So(body["code"], ShouldEqual, "not_found")
			So(body["message"], ShouldContainSubstring, "api.complete_event")
			So(body, ShouldNotContainKey, "outcome")
		})

		Convey("Rankings validate the limit", func() {
			So(do(mux, http.MethodGet, "/rankings?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/rankings?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/rankings", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Given an event with a reviewed application", func() {
			org := createUser(mux, "org")
			vol := createUser(mux, "vol")
			other := createUser(mux, "other")

			w := do(mux, http.MethodPost, "/events", `{"creator_user_id":"`+org+`","description":"park cleanup"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var ev model.Event
			decodeBody(w, &ev)
			So(ev.Completed, ShouldBeFalse)

			w = do(mux, http.MethodPost, "/events/"+ev.EventID+"/applications", `{"applicant_user_id":"`+vol+`"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			var app model.Application
			decodeBody(w, &app)
			So(app.Status, ShouldEqual, model.StatusPending)

			So(do(mux, http.MethodPost, "/applications/"+app.ApplicationID+"/review", `{"status":"maybe"}`).Code,
				ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/applications/"+app.ApplicationID+"/review", `{"status":"accepted"}`).Code,
				ShouldEqual, http.StatusOK)

			Convey("When the event is completed", func() {
				w := do(mux, http.MethodPost, "/events/"+ev.EventID+"/complete", "")

				Convey("Then the volunteer is credited", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					var body struct {
						Outcome      string `json:"outcome"`
						Credited     int    `json:"credited"`
						CreditErrors []any  `json:"credit_errors"`
					}
					decodeBody(w, &body)
					So(body.Outcome, ShouldEqual, string(reputation.OutcomeCompleted))
					So(body.Credited, ShouldEqual, 1)
					So(body.CreditErrors, ShouldBeEmpty)

					var u map[string]any
					decodeBody(do(mux, http.MethodGet, "/users/"+vol, ""), &u)
					So(u["score"], ShouldEqual, float64(1))
				})

				Convey("And completing again reports already_completed", func() {
					var body map[string]any
					decodeBody(do(mux, http.MethodPost, "/events/"+ev.EventID+"/complete", ""), &body)
					So(body["outcome"], ShouldEqual, string(reputation.OutcomeAlreadyCompleted))
				})

				Convey("And late applications and reviews conflict", func() {
					So(do(mux, http.MethodPost, "/events/"+ev.EventID+"/applications", `{"applicant_user_id":"`+other+`"}`).Code,
						ShouldEqual, http.StatusConflict)
					So(do(mux, http.MethodPost, "/applications/"+app.ApplicationID+"/review", `{"status":"rejected"}`).Code,
						ShouldEqual, http.StatusConflict)
				})

				Convey("And badges can be refreshed synchronously", func() {
					w := do(mux, http.MethodPost, "/users/"+vol+"/badges/refresh", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					var body struct {
						Updated bool          `json:"updated"`
						Badges  []model.Badge `json:"badges"`
					}
					decodeBody(w, &body)
					So(body.Updated, ShouldBeTrue)
					So(body.Badges[0].Name, ShouldEqual, "Volunteering First Steps")
				})

				Convey("And rankings list the volunteer first, capped at two", func() {
					var entries []map[string]any
					decodeBody(do(mux, http.MethodGet, "/rankings?limit=50", ""), &entries)
					So(entries, ShouldHaveLength, 2)
					So(entries[0]["user_id"], ShouldEqual, vol)
					So(entries[0]["rank"], ShouldEqual, float64(1))
				})
			})

			Convey("When the event is deleted", func() {
				So(do(mux, http.MethodDelete, "/events/"+ev.EventID, "").Code, ShouldEqual, http.StatusOK)

				Convey("Then it is gone", func() {
					So(do(mux, http.MethodGet, "/events/"+ev.EventID, "").Code, ShouldEqual, http.StatusNotFound)
				})
			})

			Convey("When scores are reset", func() {
				w := do(mux, http.MethodPost, "/admin/scores/reset", "")

				Convey("Then every zero-score user is counted", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					var body map[string]int
					decodeBody(w, &body)
					So(body["updated"], ShouldEqual, 3)
				})
			})
		})

		Convey("Wrong methods are refused by the router", func() {
			So(do(mux, http.MethodGet, "/admin/scores/reset", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

type failingRanker struct{}

func (failingRanker) TopRankedUsers(context.Context, int) ([]model.User, error) {
	return nil, errors.New("store unavailable")
}

func TestRankingsHandler_Failure(t *testing.T) {
	Convey("Given a ranking source that fails", t, func() {
		h := api.NewRankingsHandler(failingRanker{})
		mux := http.NewServeMux()
		mux.HandleFunc("GET /rankings", api.MetricsMiddleware(h.HandleGetRankings, "rankings"))

		Convey("Then the handler answers 500 with an error body", func() {
			w := do(mux, http.MethodGet, "/rankings?limit=3", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			var body map[string]string
			decodeBody(w, &body)
			So(body["code"], ShouldEqual, "internal_error")
			So(body["message"], ShouldContainSubstring, "api.get_rankings")
		})
	})
}

// resetFailingStore fails the score reset for selected users.
type resetFailingStore struct {
	*repository.MemoryStore
	fail map[string]bool
}

func (s *resetFailingStore) ResetScoreIfUnscored(ctx context.Context, userID string) (bool, error) {
	if s.fail[userID] {
		return false, errors.New("boom")
	}
	return s.MemoryStore.ResetScoreIfUnscored(ctx, userID)
}

func TestAdminHandler_PartialReset(t *testing.T) {
	Convey("Given unscored users a, b and c where resetting b fails", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore()
		for _, id := range []string{"a", "b", "c"} {
			So(mem.CreateUser(ctx, model.User{UserID: id}), ShouldBeNil)
		}
		svc := service.New(
			service.WithStore(&resetFailingStore{MemoryStore: mem, fail: map[string]bool{"b": true}}),
			service.WithAutoRefreshBadges(false),
		)
		mux := newMux(svc)

		Convey("When scores are reset", func() {
			w := do(mux, http.MethodPost, "/admin/scores/reset", "")

			Convey("Then the applied writes are counted and the failure is listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body struct {
					Updated int      `json:"updated"`
					Errors  []string `json:"errors"`
				}
				decodeBody(w, &body)
				So(body.Updated, ShouldEqual, 2)
				So(body.Errors, ShouldHaveLength, 1)
				So(body.Errors[0], ShouldContainSubstring, "reset score for b")
			})
		})
	})
}

func TestOpError(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("boom")

		Convey("WrapKind matches both kind and cause", func() {
			err := api.WrapKind("op", api.ErrBadRequest, cause)
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "op: bad request: boom")
		})

		Convey("Wrap of nil is nil", func() {
			So(api.Wrap("op", nil), ShouldBeNil)
		})
	})
}
