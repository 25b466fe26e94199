package layering_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/diamond/internal/domain/layering"
	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/internal/domain/playgraph"
	"github.com/okian/diamond/pkg/logger"
)

var opening = time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)

func mkPlay(id, game string, day, idx int, batter, pitcher string) model.Play {
	return model.Play{
		ID: id, GameID: game, Date: opening.AddDate(0, 0, day), Index: idx,
		BatterID: batter, PitcherID: pitcher, Outcome: model.Groundout,
		BatterFaces: model.Left, PitcherFaces: model.Right,
	}
}

func setup(t *testing.T) (*playgraph.Builder, *layering.Planner) {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return playgraph.NewBuilder(), layering.NewPlanner()
}

// randomSeason builds several concurrent games per day with overlapping
// rosters, so dependencies cross games and days.
func randomSeason(rng *rand.Rand, days, gamesPerDay, playsPerGame int) []model.Play {
	var out []model.Play
	for d := 0; d < days; d++ {
		for gm := 0; gm < gamesPerDay; gm++ {
			game := fmt.Sprintf("d%02dg%d", d, gm)
			for i := 0; i < playsPerGame; i++ {
				out = append(out, mkPlay(
					fmt.Sprintf("%s-%03d", game, i), game, d, i,
					fmt.Sprintf("bat%02d", rng.Intn(60)), fmt.Sprintf("pit%02d", rng.Intn(12)),
				))
			}
		}
	}
	return out
}

func TestPlan(t *testing.T) {
	b, pl := setup(t)
	ctx := context.Background()

	convey.Convey("Given seq1 A-P, seq2 A-Q and seq3 B-P", t, func() {
		g, err := b.Build(ctx, []model.Play{
			mkPlay("seq1", "g", 0, 1, "A", "P"),
			mkPlay("seq2", "g", 0, 2, "A", "Q"),
			mkPlay("seq3", "g", 0, 3, "B", "P"),
		})
		convey.So(err, convey.ShouldBeNil)

		plan, err := pl.Plan(ctx, g)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then seq1 is alone in layer 0 and the others share layer 1", func() {
			convey.So(plan.Assignment, convey.ShouldResemble, []int{0, 1, 1})
			convey.So(plan.Len(), convey.ShouldEqual, 2)
			convey.So(plan.Layers[0].Plays, convey.ShouldResemble, []int{0})
			convey.So(plan.Layers[1].Plays, convey.ShouldResemble, []int{1, 2})
			convey.So(layering.Verify(g, plan.Assignment), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given an empty graph", t, func() {
		g, err := b.Build(ctx, nil)
		convey.So(err, convey.ShouldBeNil)
		plan, err := pl.Plan(ctx, g)

		convey.Convey("Then there are no layers", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(plan.Len(), convey.ShouldEqual, 0)
		})
	})
}

func TestPlanProperties(t *testing.T) {
	b, pl := setup(t)
	ctx := context.Background()

	convey.Convey("Given a random season", t, func() {
		rng := rand.New(rand.NewSource(11))
		g, err := b.Build(ctx, randomSeason(rng, 10, 4, 40))
		convey.So(err, convey.ShouldBeNil)

		plan, err := pl.Plan(ctx, g)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then the assignment is minimal and each layer is an antichain", func() {
			convey.So(layering.Verify(g, plan.Assignment), convey.ShouldBeNil)
		})

		convey.Convey("Then exactly the plays without predecessors are in layer 0", func() {
			ok := true
			for i := 0; i < g.Len(); i++ {
				first := g.Pred(i, model.Batter) == playgraph.None && g.Pred(i, model.Pitcher) == playgraph.None
				if first != (plan.Assignment[i] == 0) {
					ok = false
				}
			}
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("Then layers cover every play exactly once", func() {
			total := 0
			for n, l := range plan.Layers {
				convey.So(l.Number, convey.ShouldEqual, n)
				convey.So(l.Plays, convey.ShouldNotBeEmpty)
				total += len(l.Plays)
			}
			convey.So(total, convey.ShouldEqual, g.Len())
		})

		convey.Convey("Then layering is far shallower than the play count", func() {
			convey.So(plan.Len(), convey.ShouldBeLessThan, g.Len()/2)
		})
	})
}

func TestAssignCycle(t *testing.T) {
	convey.Convey("Given links that point forward", t, func() {
		plays := []model.Play{
			mkPlay("a", "g", 0, 1, "A", "P"),
			mkPlay("b", "g", 0, 2, "A", "P"),
		}
		g, err := playgraph.FromLinks(plays, []int{1, playgraph.None}, []int{playgraph.None, playgraph.None})
		convey.So(err, convey.ShouldBeNil)

		_, err = layering.Assign(g)

		convey.Convey("Then a cycle is reported", func() {
			convey.So(errors.Is(err, layering.ErrCycleDetected), convey.ShouldBeTrue)
			var ce *layering.CycleDetectedError
			convey.So(errors.As(err, &ce), convey.ShouldBeTrue)
			convey.So(ce.PlayID, convey.ShouldEqual, "a")
			convey.So(ce.PredecessorID, convey.ShouldEqual, "b")
		})
	})
}

func TestVerifyRejects(t *testing.T) {
	b, _ := setup(t)

	convey.Convey("Given a valid graph", t, func() {
		g, err := b.Build(context.Background(), []model.Play{
			mkPlay("seq1", "g", 0, 1, "A", "P"),
			mkPlay("seq2", "g", 0, 2, "A", "Q"),
			mkPlay("seq3", "g", 0, 3, "B", "P"),
		})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then a layer that is too deep fails", func() {
			convey.So(errors.Is(layering.Verify(g, []int{0, 2, 1}), layering.ErrLayerMismatch), convey.ShouldBeTrue)
		})

		convey.Convey("Then a dependent play in the same layer fails", func() {
			convey.So(layering.Verify(g, []int{0, 0, 1}), convey.ShouldNotBeNil)
		})

		convey.Convey("Then a short assignment fails", func() {
			convey.So(layering.Verify(g, []int{0}), convey.ShouldNotBeNil)
		})
	})
}
