package aggregate_test

import (
	"errors"
	"testing"

	"github.com/joshphelan/nba-player-similarity/internal/domain/aggregate"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func season(t *testing.T, s string, codes ...string) *model.StatTable {
	t.Helper()
	recs := make([]model.Record, 0, len(codes))
	for i, c := range codes {
		recs = append(recs, model.Record{ID: c, Code: c, Season: s, Player: "Player " + c, Stats: []float64{float64(i), 1}})
	}
	tbl, err := model.NewStatTable(s, []string{"G", "PTS"}, recs)
	if err != nil {
		t.Fatalf("season %s: %v", s, err)
	}
	return tbl
}

func TestCombine(t *testing.T) {
	Convey("Given two seasons sharing a player", t, func() {
		s1988 := season(t, "1988", "jordami01", "birdla01")
		s1980 := season(t, "1980", "birdla01")

		Convey("When they are combined out of order", func() {
			all, err := aggregate.Combine(s1988, s1980)
			So(err, ShouldBeNil)

			Convey("Then ids should be unique per season and ordered by season", func() {
				So(all.Scope, ShouldEqual, model.ScopeAll)
				So(all.IDs(), ShouldResemble, []string{"birdla01_1980", "jordami01_1988", "birdla01_1988"})
			})

			Convey("Then names should carry the season", func() {
				r, ok := all.Get("birdla01_1980")
				So(ok, ShouldBeTrue)
				So(r.Player, ShouldEqual, "Player birdla01 (1980)")
				So(r.Code, ShouldEqual, "birdla01")
				So(r.Season, ShouldEqual, "1980")
			})

			Convey("Then the source tables should be untouched", func() {
				r, _ := s1980.Get("birdla01")
				So(r.Player, ShouldEqual, "Player birdla01")
			})
		})

		Convey("When the same season is supplied twice", func() {
			_, err := aggregate.Combine(s1980, s1980)

			Convey("Then duplicate ids should be rejected", func() {
				So(errors.Is(err, errs.ErrDataIntegrity), ShouldBeTrue)
			})
		})

		Convey("When schemas differ", func() {
			odd, err := model.NewStatTable("1992", []string{"G"}, []model.Record{{ID: "x", Code: "x", Season: "1992", Stats: []float64{40}}})
			So(err, ShouldBeNil)
			_, err = aggregate.Combine(s1980, odd)

			Convey("Then it should fail with a data integrity error", func() {
				So(errors.Is(err, errs.ErrDataIntegrity), ShouldBeTrue)
			})
		})

		Convey("When nothing is supplied", func() {
			_, err := aggregate.Combine()
			So(errors.Is(err, errs.ErrDataIntegrity), ShouldBeTrue)
		})
	})
}
