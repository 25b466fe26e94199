package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/diamond/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseOutcome(t *testing.T) {
	convey.Convey("Given play-by-play descriptions", t, func() {
		cases := []struct {
			desc string
			want model.Outcome
		}{
			{"Strikeout Swinging", model.Strikeout},
			{"Lineout: SS", model.Lineout},
			{"Groundout: 2B-1B", model.Groundout},
			{"Flyball: CF", model.Flyout},
			{"Popfly: 1B (Foul Territory)", model.Flyout},
			{"Walk", model.Walk},
			{"Intentional Walk", model.Walk},
			{"Single to LF (Line Drive)", model.Single},
			{"Double to RF (Fly Ball); Smith Scores", model.Double},
			{"Triple to CF", model.Triple},
			{"Home Run (Fly Ball to Deep LF Line)", model.HomeRun},
			{"Ground Ball Double Play: SS-2B-1B", model.Groundout},
			{"Strikeout Swinging, Double Play", model.Strikeout},
			{"Reached on E6 (Ground Ball)", model.Groundout},
			{"Reached on E9 (Fly Ball)", model.Flyout},
			{"Reached on E5 (Line Drive)", model.Lineout},
			{"Error on foul ball by 1B", model.Flyout},
		}

		convey.Convey("Then each is classified to its field-agnostic outcome", func() {
			for _, c := range cases {
				got, ok := model.ParseOutcome(c.desc)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(got, convey.ShouldEqual, c.want)
			}
		})

		convey.Convey("Then non plate-appearance events are rejected", func() {
			for _, d := range []string{"Stolen Base 2B", "Picked off 1B", "Wild Pitch", ""} {
				_, ok := model.ParseOutcome(d)
				convey.So(ok, convey.ShouldBeFalse)
			}
		})
	})
}

func TestOutcomeText(t *testing.T) {
	convey.Convey("Given outcome names", t, func() {
		convey.Convey("Then every outcome survives a text round trip", func() {
			for _, o := range model.Outcomes() {
				b, err := o.MarshalText()
				convey.So(err, convey.ShouldBeNil)
				var back model.Outcome
				convey.So(back.UnmarshalText(b), convey.ShouldBeNil)
				convey.So(back, convey.ShouldEqual, o)
			}
		})

		convey.Convey("Then aliases and bad names are handled", func() {
			o, err := model.ParseOutcomeName("Home Run")
			convey.So(err, convey.ShouldBeNil)
			convey.So(o, convey.ShouldEqual, model.HomeRun)

			_, err = model.ParseOutcomeName("balk")
			convey.So(errors.Is(err, model.ErrInvalidOutcome), convey.ShouldBeTrue)

			_, err = model.Outcome(12).MarshalText()
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Then the one-hot vector marks only the observed index", func() {
			v := model.Double.OneHot()
			sum := 0.0
			for _, x := range v {
				sum += x
			}
			convey.So(sum, convey.ShouldEqual, 1)
			convey.So(v[model.Double], convey.ShouldEqual, 1)
		})
	})
}

func TestResolveMatchup(t *testing.T) {
	convey.Convey("Given every batting/throwing combination", t, func() {
		L, R, B := model.Left, model.Right, model.Both
		cases := []struct {
			bats, throws          model.Hand
			batterFaces, pitFaces model.Hand
		}{
			{L, L, L, L},
			{L, R, R, L},
			{R, L, L, R},
			{R, R, R, R},
			{B, L, L, R},
			{B, R, R, L},
			{L, B, L, L},
			{R, B, R, R},
			{B, B, L, R},
		}

		convey.Convey("Then each participant faces a resolved side", func() {
			for _, c := range cases {
				bf, pf := model.ResolveMatchup(c.bats, c.throws)
				convey.So(bf, convey.ShouldEqual, c.batterFaces)
				convey.So(pf, convey.ShouldEqual, c.pitFaces)
				convey.So(bf.Bucket() && pf.Bucket(), convey.ShouldBeTrue)
			}
		})
	})
}

func TestSequenceKey(t *testing.T) {
	convey.Convey("Given sequence keys", t, func() {
		d1 := time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC)
		d2 := d1.AddDate(0, 0, 1)

		convey.Convey("Then date dominates, then game, then index", func() {
			convey.So(model.SequenceKey{Date: d1, GameID: "Z", Index: 90}.Compare(model.SequenceKey{Date: d2, GameID: "A", Index: 1}), convey.ShouldEqual, -1)
			convey.So(model.SequenceKey{Date: d1, GameID: "A", Index: 90}.Compare(model.SequenceKey{Date: d1, GameID: "B", Index: 1}), convey.ShouldEqual, -1)
			convey.So(model.SequenceKey{Date: d1, GameID: "A", Index: 2}.Compare(model.SequenceKey{Date: d1, GameID: "A", Index: 1}), convey.ShouldEqual, 1)
			convey.So(model.SequenceKey{Date: d1, GameID: "A", Index: 2}.Compare(model.SequenceKey{Date: d1, GameID: "A", Index: 2}), convey.ShouldEqual, 0)
		})
	})
}

func TestPlay(t *testing.T) {
	convey.Convey("Given a play", t, func() {
		p := model.Play{
			ID: "p1", GameID: "g1", Date: time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC), Index: 3,
			BatterID: "troutmi01", PitcherID: "verlaju01", Outcome: model.Walk,
			BatterFaces: model.Right, PitcherFaces: model.Right,
		}

		convey.Convey("Then it validates and exposes role accessors", func() {
			convey.So(p.Validate(), convey.ShouldBeNil)
			convey.So(p.Participant(model.Batter), convey.ShouldEqual, "troutmi01")
			convey.So(p.Participant(model.Pitcher), convey.ShouldEqual, "verlaju01")
			convey.So(p.Faces(model.Pitcher), convey.ShouldEqual, model.Right)
		})

		convey.Convey("Then it decodes from JSON with textual enums", func() {
			raw := `{"id":"p2","game_id":"g1","date":"2019-04-01T00:00:00Z","index":4,
				"batter_id":"a","pitcher_id":"b","outcome":"home_run","batter_faces":"L","pitcher_faces":"R"}`
			var q model.Play
			convey.So(json.Unmarshal([]byte(raw), &q), convey.ShouldBeNil)
			convey.So(q.Outcome, convey.ShouldEqual, model.HomeRun)
			convey.So(q.BatterFaces, convey.ShouldEqual, model.Left)
			convey.So(q.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then missing participants and unresolved hands are rejected", func() {
			q := p
			q.PitcherID = ""
			convey.So(errors.Is(q.Validate(), model.ErrInvalidPlay), convey.ShouldBeTrue)

			q = p
			q.BatterFaces = model.Both
			convey.So(q.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("Then participant ids in the reserved namespace are rejected", func() {
			q := p
			q.BatterID = model.ReservedPrefix + "league"
			convey.So(errors.Is(q.Validate(), model.ErrInvalidPlay), convey.ShouldBeTrue)

			q = p
			q.PitcherID = "__league__"
			convey.So(errors.Is(q.Validate(), model.ErrInvalidPlay), convey.ShouldBeTrue)
		})
	})
}
