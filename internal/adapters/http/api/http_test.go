package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/diamond/internal/adapters/http/api"
	"github.com/okian/diamond/internal/adapters/repository"
	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/rating"
	"github.com/okian/diamond/pkg/logger"
)

type mockDeps struct {
	*repository.ShardedStore
	stats  map[string]any
	getErr error
}

func (m *mockDeps) GetStats() map[string]any { return m.stats }

func (m *mockDeps) Get(ctx context.Context, key rating.Key) (rating.Snapshot, error) {
	if m.getErr != nil {
		return rating.Snapshot{}, m.getErr
	}
	return m.ShardedStore.Get(ctx, key)
}

func newDeps(t *testing.T) *mockDeps {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	ctx := context.Background()
	store := repository.NewShardedStore(ctx, rating.DefaultParams(), repository.WithShardCount(2))
	t.Cleanup(func() { _ = store.Close() })

	_, _ = store.Update(ctx, rating.PlayerKey("troutmi01", model.Batter, model.Right), model.HomeRun)
	_, _ = store.Update(ctx, rating.LeagueKey(model.Pitcher, model.Left), model.Strikeout)
	return &mockDeps{
		ShardedStore: store,
		stats:        map[string]any{"phase": "evaluating", "layer": 3},
	}
}

func serve(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given an API server on a mux", t, func() {
		deps := newDeps(t)
		mux := http.NewServeMux()
		api.NewServer(deps).Register(context.Background(), mux)

		Convey("Then health answers ok", func() {
			w := serve(mux, http.MethodGet, "/healthz")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then metrics are exposed in the Prometheus text format", func() {
			_ = serve(mux, http.MethodGet, "/healthz")
			w := serve(mux, http.MethodGet, "/metrics")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then stats are returned as JSON", func() {
			w := serve(mux, http.MethodGet, "/stats")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			var body map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body["phase"], ShouldEqual, "evaluating")
			So(body["layer"], ShouldEqual, 3)
		})

		Convey("Then non-GET stats are not found", func() {
			So(serve(mux, http.MethodPost, "/stats").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then unknown paths are not found", func() {
			So(serve(mux, http.MethodGet, "/unknown").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

type ratingsBody struct {
	Role    string `json:"role"`
	Entity  string `json:"entity"`
	Ratings []struct {
		Hand        string          `json:"hand"`
		Appearances int64           `json:"appearances"`
		Timescales  []int           `json:"timescales"`
		Vectors     []rating.Vector `json:"vectors"`
	} `json:"ratings"`
}

func TestRatingsHandler_HandleGetRatings(t *testing.T) {
	Convey("Given a store with a batter and a league rating", t, func() {
		deps := newDeps(t)
		mux := http.NewServeMux()
		api.NewServer(deps).Register(context.Background(), mux)

		Convey("When a stored player is requested", func() {
			w := serve(mux, http.MethodGet, "/ratings/batter/troutmi01")

			Convey("Then only the stored hand is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body ratingsBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Role, ShouldEqual, "batter")
				So(body.Entity, ShouldEqual, "troutmi01")
				So(body.Ratings, ShouldHaveLength, 1)
				So(body.Ratings[0].Hand, ShouldEqual, "R")
				So(body.Ratings[0].Appearances, ShouldEqual, 1)
				So(body.Ratings[0].Timescales, ShouldResemble, []int{100, 1000, 10000})
				So(body.Ratings[0].Vectors, ShouldHaveLength, 3)
			})
		})

		Convey("When the league average is requested", func() {
			w := serve(mux, http.MethodGet, "/ratings/p/"+api.LeagueSegment)

			Convey("Then it uses the league timescales", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body ratingsBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Ratings, ShouldHaveLength, 1)
				So(body.Ratings[0].Hand, ShouldEqual, "L")
				So(body.Ratings[0].Timescales, ShouldResemble, []int{1000, 10000, 100000})
			})
		})

		Convey("When a player's id is literally league", func() {
			_, err := deps.ShardedStore.Update(context.Background(),
				rating.PlayerKey("league", model.Pitcher, model.Right), model.Walk)
			So(err, ShouldBeNil)
			w := serve(mux, http.MethodGet, "/ratings/pitcher/league")

			Convey("Then the player is returned, not the league average", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body ratingsBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Ratings, ShouldHaveLength, 1)
				So(body.Ratings[0].Hand, ShouldEqual, "R")
				So(body.Ratings[0].Timescales, ShouldResemble, []int{100, 1000, 10000})
			})
		})

		Convey("When a reserved id other than the league segment is requested", func() {
			w := serve(mux, http.MethodGet, "/ratings/batter/"+rating.LeagueEntity)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "reserved")
			})
		})

		Convey("When the player never appeared in the role", func() {
			w := serve(mux, http.MethodGet, "/ratings/pitcher/troutmi01")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, "not_found")
			})
		})

		Convey("When the path is malformed", func() {
			Convey("Then a missing entity is a bad request", func() {
				So(serve(mux, http.MethodGet, "/ratings/batter/").Code, ShouldEqual, http.StatusBadRequest)
			})
			Convey("Then an unknown role is a bad request", func() {
				So(serve(mux, http.MethodGet, "/ratings/catcher/x").Code, ShouldEqual, http.StatusBadRequest)
			})
			Convey("Then extra segments are a bad request", func() {
				So(serve(mux, http.MethodGet, "/ratings/batter/x/y").Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the store fails", func() {
			deps.getErr = errors.New("shard offline")
			w := serve(mux, http.MethodGet, "/ratings/batter/troutmi01")

			Convey("Then it is an internal error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldContainSubstring, "shard offline")
			})
		})
	})
}

func TestMetricsMiddleware_EndpointLabels(t *testing.T) {
	Convey("Given rating lookups for players and the league", t, func() {
		deps := newDeps(t)
		mux := http.NewServeMux()
		api.NewServer(deps).Register(context.Background(), mux)

		So(serve(mux, http.MethodGet, "/ratings/batter/troutmi01").Code, ShouldEqual, http.StatusOK)
		So(serve(mux, http.MethodGet, "/ratings/pitcher/"+api.LeagueSegment).Code, ShouldEqual, http.StatusOK)
		So(serve(mux, http.MethodGet, "/ratings/pitcher/nobody99").Code, ShouldEqual, http.StatusNotFound)
		body := serve(mux, http.MethodGet, "/metrics").Body.String()

		Convey("Then requests are counted per route, not per entity", func() {
			So(body, ShouldContainSubstring, `endpoint="ratings_player"`)
			So(body, ShouldContainSubstring, `endpoint="ratings_league"`)
			So(body, ShouldNotContainSubstring, "troutmi01")
			So(body, ShouldNotContainSubstring, "nobody99")
		})

		Convey("Then a lookup without ratings is classified as such", func() {
			So(body, ShouldContainSubstring, `component="http",error_type="no_ratings"`)
		})
	})
}
