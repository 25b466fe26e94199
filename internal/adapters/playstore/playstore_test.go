package playstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/diamond/internal/adapters/playstore"
	"github.com/okian/diamond/internal/domain/model"
	"github.com/okian/diamond/pkg/logger"
)

const corpus = `{"id":"1","game_id":"BOS201904010","date":"2019-04-01","index":1,"batter_id":"bettsmo01","pitcher_id":"colege01","outcome":"single","bats":"R","throws":"R"}
{"id":"2","game_id":"BOS201904010","date":"2019-04-01","index":2,"batter_id":"beninan01","pitcher_id":"colege01","description":"Strikeout Swinging","bats":"B","throws":"R"}

{"id":"3","game_id":"BOS201904010","date":"2019-04-01","index":3,"batter_id":"martijd02","pitcher_id":"colege01","description":"Stolen Base 2B","bats":"R","throws":"R"}
{"id":"4","game_id":"BOS201904010","date":"2019-04-01","index":4,"batter_id":"martijd02","pitcher_id":"colege01","description":"Reached on E6 (Ground Ball)","bats":"R","throws":"B"}
{"id":"5","game_id":"BOS201904010","date":"2019-04-01","index":5,"batter_id":"bogaexa01","pitcher_id":"colege01","outcome":"walk","batter_faces":"L","pitcher_faces":"R"}
`

func newStore(t *testing.T, opts ...playstore.Option) *playstore.Store {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return playstore.New(opts...)
}

func TestRead(t *testing.T) {
	s := newStore(t)

	Convey("Given a JSONL corpus with outcome names and descriptions", t, func() {
		plays, st, err := s.Read(context.Background(), strings.NewReader(corpus))
		So(err, ShouldBeNil)

		Convey("Then non-outcome rows are skipped and counted", func() {
			So(st.Rows, ShouldEqual, 5)
			So(st.Plays, ShouldEqual, 4)
			So(st.Skipped, ShouldEqual, 1)
			So(plays, ShouldHaveLength, 4)
		})

		Convey("Then outcomes come from names or descriptions", func() {
			So(plays[0].Outcome, ShouldEqual, model.Single)
			So(plays[1].Outcome, ShouldEqual, model.Strikeout)
			So(plays[2].Outcome, ShouldEqual, model.Groundout)
			So(plays[3].Outcome, ShouldEqual, model.Walk)
		})

		Convey("Then handedness is resolved", func() {
			// switch hitter against a righty bats left
			So(plays[1].BatterFaces, ShouldEqual, model.Right)
			So(plays[1].PitcherFaces, ShouldEqual, model.Left)
			// ambidextrous pitcher against a righty throws right
			So(plays[2].BatterFaces, ShouldEqual, model.Right)
			So(plays[2].PitcherFaces, ShouldEqual, model.Right)
			// explicit faced hands win
			So(plays[3].BatterFaces, ShouldEqual, model.Left)
			So(plays[3].PitcherFaces, ShouldEqual, model.Right)
		})

		Convey("Then dates are parsed as calendar days", func() {
			So(plays[0].Date.Format("2006-01-02"), ShouldEqual, "2019-04-01")
			So(plays[0].Key().Index, ShouldEqual, 1)
		})
	})

	Convey("Given a broken row", t, func() {
		bad := corpus + `{"id":"6","date":"yesterday","outcome":"single","bats":"R","throws":"R"}` + "\n"
		_, _, err := s.Read(context.Background(), strings.NewReader(bad))

		Convey("Then the line is reported", func() {
			So(errors.Is(err, playstore.ErrInvalidRow), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "line 7")
		})
	})

	Convey("Given rows missing outcome or hands", t, func() {
		_, _, err1 := s.Read(context.Background(), strings.NewReader(`{"id":"x","date":"2019-04-01","bats":"R","throws":"R"}`))
		_, _, err2 := s.Read(context.Background(), strings.NewReader(`{"id":"x","date":"2019-04-01","outcome":"walk"}`))
		_, _, err3 := s.Read(context.Background(), strings.NewReader(`{"id":"x","date":"2019-04-01","outcome":"bunt","bats":"R","throws":"R"}`))

		Convey("Then each is rejected", func() {
			So(errors.Is(err1, playstore.ErrInvalidRow), ShouldBeTrue)
			So(errors.Is(err2, model.ErrInvalidHand), ShouldBeTrue)
			So(errors.Is(err3, model.ErrInvalidOutcome), ShouldBeTrue)
		})
	})
}

func TestLoadGzip(t *testing.T) {
	s := newStore(t)

	Convey("Given the corpus as plain and gzip files", t, func() {
		dir := t.TempDir()
		plain := filepath.Join(dir, "plays.jsonl")
		So(os.WriteFile(plain, []byte(corpus), 0o600), ShouldBeNil)

		zipped := filepath.Join(dir, "plays.jsonl.gz")
		f, err := os.Create(zipped)
		So(err, ShouldBeNil)
		zw := gzip.NewWriter(f)
		_, err = zw.Write([]byte(corpus))
		So(err, ShouldBeNil)
		So(zw.Close(), ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		a, sa, errA := s.Load(context.Background(), plain)
		b, sb, errB := s.Load(context.Background(), zipped)

		Convey("Then both load the same plays", func() {
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)
			So(b, ShouldResemble, a)
			So(sb.Fingerprint, ShouldEqual, sa.Fingerprint)
		})

		Convey("Then a missing file fails to open", func() {
			_, _, err := s.Load(context.Background(), filepath.Join(dir, "nope.jsonl"))
			So(errors.Is(err, playstore.ErrOpen), ShouldBeTrue)
		})
	})
}

func TestFingerprint(t *testing.T) {
	s := newStore(t)

	Convey("Given a loaded corpus", t, func() {
		plays, _, err := s.Read(context.Background(), strings.NewReader(corpus))
		So(err, ShouldBeNil)
		base := playstore.Fingerprint(plays, "")

		Convey("Then input order does not matter", func() {
			rev := make([]model.Play, len(plays))
			for i := range plays {
				rev[len(plays)-1-i] = plays[i]
			}
			So(playstore.Fingerprint(rev, ""), ShouldEqual, base)
		})

		Convey("Then any change to a play changes it", func() {
			changed := append([]model.Play(nil), plays...)
			changed[2].Outcome = model.Lineout
			So(playstore.Fingerprint(changed, ""), ShouldNotEqual, base)
		})

		Convey("Then the salt changes it", func() {
			So(playstore.Fingerprint(plays, "k=100"), ShouldNotEqual, base)
		})
	})
}
