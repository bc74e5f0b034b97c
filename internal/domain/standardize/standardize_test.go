package standardize_test

import (
	"errors"
	"math"
	"testing"

	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	"github.com/joshphelan/nba-player-similarity/internal/domain/standardize"
	. "github.com/smartystreets/goconvey/convey"
)

func table(t *testing.T, cols []string, rows map[string][]float64, order ...string) *model.StatTable {
	t.Helper()
	recs := make([]model.Record, 0, len(order))
	for _, id := range order {
		recs = append(recs, model.Record{ID: id, Code: id, Stats: rows[id]})
	}
	tbl, err := model.NewStatTable("test", cols, recs)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	return tbl
}

func TestFitTransform(t *testing.T) {
	Convey("Given the two-player toy table", t, func() {
		tbl := table(t, []string{"PTS", "TRB", "AST"}, map[string][]float64{
			"A": {10, 5, 2},
			"B": {8, 6, 3},
		}, "A", "B")

		Convey("When it is standardized", func() {
			m, err := standardize.FitTransform(tbl)
			So(err, ShouldBeNil)

			Convey("Then each column should be plus or minus one", func() {
				So(m.Row(0), ShouldResemble, []float64{1, -1, -1})
				So(m.Row(1), ShouldResemble, []float64{-1, 1, 1})
			})

			Convey("Then the scaler should hold population parameters", func() {
				So(m.Scaler.Mean, ShouldResemble, []float64{9, 5.5, 2.5})
				So(m.Scaler.Std, ShouldResemble, []float64{1, 0.5, 0.5})
				So(m.Scaler.Columns, ShouldResemble, []string{"PTS", "TRB", "AST"})
			})
		})
	})

	Convey("Given a larger table", t, func() {
		tbl := table(t, []string{"X", "Y"}, map[string][]float64{
			"a": {1, 100}, "b": {2, 200}, "c": {3, 150}, "d": {10, 50},
		}, "a", "b", "c", "d")

		m, err := standardize.FitTransform(tbl)
		So(err, ShouldBeNil)

		Convey("Then every column should have zero mean and unit population variance", func() {
			for j := 0; j < m.Cols(); j++ {
				var sum, ss float64
				for i := 0; i < m.Rows(); i++ {
					sum += m.Row(i)[j]
				}
				mean := sum / float64(m.Rows())
				for i := 0; i < m.Rows(); i++ {
					d := m.Row(i)[j] - mean
					ss += d * d
				}
				So(mean, ShouldAlmostEqual, 0, 1e-12)
				So(math.Sqrt(ss/float64(m.Rows())), ShouldAlmostEqual, 1, 1e-12)
			}
		})
	})

	Convey("Given a table with a constant column", t, func() {
		tbl := table(t, []string{"G", "PTS"}, map[string][]float64{
			"a": {82, 20}, "b": {82, 25},
		}, "a", "b")

		Convey("When standardized with defaults", func() {
			_, err := standardize.FitTransform(tbl)

			Convey("Then it should fail as a degenerate scope", func() {
				So(errors.Is(err, errs.ErrDegenerateScope), ShouldBeTrue)
			})
		})

		Convey("When constant columns may be dropped", func() {
			m, err := standardize.FitTransform(tbl, standardize.WithDropConstant())

			Convey("Then the column should be removed and reported", func() {
				So(err, ShouldBeNil)
				So(m.Columns, ShouldResemble, []string{"PTS"})
				So(m.Dropped, ShouldResemble, []string{"G"})
				for _, v := range m.Data {
					So(math.IsNaN(v) || math.IsInf(v, 0), ShouldBeFalse)
				}
			})
		})

		Convey("When the constant column is excluded", func() {
			m, err := standardize.FitTransform(tbl, standardize.WithExclude("G"))
			So(err, ShouldBeNil)
			So(m.Columns, ShouldResemble, []string{"PTS"})
		})
	})

	Convey("Given a single-row scope", t, func() {
		tbl := table(t, []string{"PTS"}, map[string][]float64{"a": {20}}, "a")
		_, err := standardize.FitTransform(tbl)

		Convey("Then every column is constant", func() {
			So(errors.Is(err, errs.ErrDegenerateScope), ShouldBeTrue)
		})
	})
}
