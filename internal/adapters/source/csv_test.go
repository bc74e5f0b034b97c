package source_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/source"
	"github.com/joshphelan/nba-player-similarity/internal/domain/errs"
	"github.com/joshphelan/nba-player-similarity/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	Convey("Given CSV input", t, func() {
		Convey("When it has a BOM, quotes and a short row", func() {
			in := "\xEF\xBB\xBFRk,Player,3P%\n1,\"Bird, Larry\",.414\n2,Short\n"
			tbl, err := source.Parse(strings.NewReader(in))

			Convey("Then it should parse into header and rows", func() {
				So(err, ShouldBeNil)
				So(tbl.Header, ShouldResemble, []string{"Rk", "Player", "3P%"})
				So(len(tbl.Rows), ShouldEqual, 2)
				So(tbl.Cell(0, 1), ShouldEqual, "Bird, Larry")
				So(tbl.Cell(1, 2), ShouldEqual, "")
			})
		})

		Convey("When it is empty", func() {
			_, err := source.Parse(strings.NewReader(""))
			So(errors.Is(err, errs.ErrDataIntegrity), ShouldBeTrue)
		})

		Convey("When a row has too many fields", func() {
			_, err := source.Parse(strings.NewReader("a,b\n1,2,3\n"))
			So(errors.Is(err, errs.ErrDataIntegrity), ShouldBeTrue)
		})

		Convey("When quoting is broken", func() {
			_, err := source.Parse(strings.NewReader("a,b\n\"1,2\n"))
			So(errors.Is(err, errs.ErrDataIntegrity), ShouldBeTrue)
		})
	})
}

func TestFileSource(t *testing.T) {
	Convey("Given a raw data directory", t, func() {
		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, "NBA 1988 Per Game.csv"), []byte("Rk,Player\n1,Larry Bird*\n"), 0o600)
		So(err, ShouldBeNil)
		src := source.NewFileSource(dir)

		Convey("When an existing table is read", func() {
			tbl, err := src.Table(context.Background(), "1988", model.PerGame)

			Convey("Then it should carry the file name", func() {
				So(err, ShouldBeNil)
				So(tbl.Name, ShouldEqual, "NBA 1988 Per Game.csv")
				So(tbl.Cell(0, 1), ShouldEqual, "Larry Bird*")
			})
		})

		Convey("When the file is missing", func() {
			_, err := src.Table(context.Background(), "1988", model.Advanced)

			Convey("Then it should be a data integrity error", func() {
				So(errors.Is(err, errs.ErrDataIntegrity), ShouldBeTrue)
				So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
			})
		})

		Convey("When a custom pattern is configured", func() {
			custom := source.NewFileSource(dir, source.WithPattern(model.Advanced, "adv-%s.csv"))
			p, err := custom.Path("2022", model.Advanced)
			So(err, ShouldBeNil)
			So(p, ShouldEqual, filepath.Join(dir, "adv-2022.csv"))
		})
	})
}
