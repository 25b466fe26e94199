package checkpoint_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/diamond/internal/adapters/checkpoint"
	"github.com/okian/diamond/internal/adapters/repository"
	"github.com/okian/diamond/internal/domain/layering"
	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/playgraph"
	"github.com/okian/diamond/internal/domain/rating"
	"github.com/okian/diamond/pkg/logger"
)

func open(t *testing.T, path string) *checkpoint.Store {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	s, err := checkpoint.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func threePlays(t *testing.T) (*playgraph.Graph, *layering.Plan) {
	t.Helper()
	day := time.Date(2020, 7, 23, 0, 0, 0, 0, time.UTC)
	mk := func(id string, idx int, b, p string) model.Play {
		return model.Play{ID: id, GameID: "g", Date: day, Index: idx, BatterID: b, PitcherID: p,
			Outcome: model.Double, BatterFaces: model.Left, PitcherFaces: model.Left}
	}
	g, err := playgraph.NewBuilder().Build(context.Background(), []model.Play{
		mk("seq1", 1, "A", "P"), mk("seq2", 2, "A", "Q"), mk("seq3", 3, "B", "P"),
	})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := layering.NewPlanner().Plan(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	return g, plan
}

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh checkpoint claimed for an input", t, func() {
		path := filepath.Join(t.TempDir(), "run.db")
		s := open(t, path)
		So(s.Reset(ctx, 0xfeedface12345678), ShouldBeNil)

		st, err := s.State(ctx)
		So(err, ShouldBeNil)
		So(st.Matches(0xfeedface12345678), ShouldBeTrue)
		So(st.LastLayer, ShouldEqual, checkpoint.NoLayer)

		g, plan := threePlays(t)
		So(s.Begin(ctx, g, plan), ShouldBeNil)

		Convey("Then the graph is stored with predecessors and layers", func() {
			nodes, err := s.Nodes(ctx)
			So(err, ShouldBeNil)
			So(nodes, ShouldResemble, []checkpoint.Node{
				{PlayID: "seq1", Seq: 0, Layer: 0},
				{PlayID: "seq2", Seq: 1, BatterPred: "seq1", Layer: 1},
				{PlayID: "seq3", Seq: 2, PitcherPred: "seq1", Layer: 1},
			})
			st, _ := s.State(ctx)
			So(st.Layers, ShouldEqual, 2)
		})

		Convey("When ratings are committed layer by layer", func() {
			store := repository.NewShardedStore(ctx, rating.DefaultParams())
			defer store.Close()
			k1 := rating.PlayerKey("A", model.Batter, model.Left)
			k2 := rating.LeagueKey(model.Pitcher, model.Left)
			_, _ = store.Update(ctx, k1, model.Double)
			_, _ = store.Update(ctx, k2, model.Double)
			So(s.Commit(ctx, 0, store.Snapshot(ctx, k1, k2)), ShouldBeNil)

			_, _ = store.Update(ctx, k1, model.Walk)
			So(s.Commit(ctx, 1, store.Snapshot(ctx, k1)), ShouldBeNil)

			Convey("Then a reopened checkpoint returns the latest values", func() {
				So(s.Close(), ShouldBeNil)
				re := open(t, path)

				st, err := re.State(ctx)
				So(err, ShouldBeNil)
				So(st.LastLayer, ShouldEqual, 1)
				So(st.Complete(), ShouldBeTrue)

				got, err := re.Ratings(ctx)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, store.Snapshot(ctx))
			})

			Convey("Then committing a layer twice is refused", func() {
				err := s.Commit(ctx, 1, nil)
				So(errors.Is(err, checkpoint.ErrOutOfOrder), ShouldBeTrue)
				st, _ := s.State(ctx)
				So(st.LastLayer, ShouldEqual, 1)
			})

			Convey("Then a reset discards everything", func() {
				So(s.Reset(ctx, 1), ShouldBeNil)
				got, err := s.Ratings(ctx)
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
				nodes, _ := s.Nodes(ctx)
				So(nodes, ShouldBeEmpty)
				st, _ := s.State(ctx)
				So(st.Matches(0xfeedface12345678), ShouldBeFalse)
				So(st.LastLayer, ShouldEqual, checkpoint.NoLayer)
			})
		})

		Convey("Then skipping a layer is refused", func() {
			So(errors.Is(s.Commit(ctx, 1, nil), checkpoint.ErrOutOfOrder), ShouldBeTrue)
		})
	})

	Convey("Given a checkpoint never claimed", t, func() {
		s := open(t, filepath.Join(t.TempDir(), "empty.db"))
		st, err := s.State(ctx)

		Convey("Then it matches nothing", func() {
			So(err, ShouldBeNil)
			So(st.HasFingerprint, ShouldBeFalse)
			So(st.Matches(0), ShouldBeFalse)
			So(st.Complete(), ShouldBeFalse)
		})
	})
}
