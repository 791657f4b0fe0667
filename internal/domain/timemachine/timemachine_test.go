package timemachine_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/smartystreets/goconvey/convey"

	"github.com/pointercrate/demonlist/internal/adapters/repository"
	"github.com/pointercrate/demonlist/internal/domain/ledger"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/internal/domain/timemachine"
	"github.com/pointercrate/demonlist/pkg/logger"
)

// clock advances only when told to, so tests can name instants between
// mutations.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time            { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	ctx   context.Context
	clk   *clock
	store *repository.MemoryStore
	l     *ledger.Ledger
	tm    *timemachine.Reconstructor
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		t.Fatal(err)
	}
	clk := &clock{t: start}
	store := repository.NewMemoryStore()
	return &fixture{
		ctx:   context.Background(),
		clk:   clk,
		store: store,
		l:     ledger.New(store, ledger.WithClock(clk.Now)),
		tm:    timemachine.New(store, timemachine.WithClock(clk.Now)),
	}
}

func (f *fixture) insert(name string, position int) model.Demon {
	f.clk.Advance(time.Hour)
	d, err := f.l.Insert(f.ctx, model.NewDemon{
		Name: name, Position: position, Requirement: 60, Publisher: "pub " + name, Verifier: "ver",
	})
	convey.So(err, convey.ShouldBeNil)
	return d
}

// names lists demon names in snapshot order.
func names(s timemachine.Snapshot) []string {
	out := make([]string, 0, len(s.Demons))
	for _, d := range s.Demons {
		out = append(out, d.Name)
	}
	return out
}

func TestReconstructor_At(t *testing.T) {
	convey.Convey("Given fifty demons added one hour apart", t, func() {
		f := newFixture(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		var seeded []model.Demon
		var addedAt []time.Time
		for i := 1; i <= 50; i++ {
			seeded = append(seeded, f.insert(fmt.Sprintf("d%d", i), i))
			addedAt = append(addedAt, f.clk.Now())
		}
		beforeRemoval := f.clk.Now()

		f.clk.Advance(time.Hour)
		_, err := f.l.Remove(f.ctx, seeded[9].ID)
		convey.So(err, convey.ShouldBeNil)
		f.clk.Advance(time.Hour)

		convey.Convey("When querying an instant before the removal", func() {
			snap, err := f.tm.At(f.ctx, beforeRemoval)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the removed demon is still at position 10", func() {
				convey.So(snap.Live, convey.ShouldBeFalse)
				convey.So(len(snap.Demons), convey.ShouldEqual, 50)
				tenth := snap.Demons[9]
				convey.So(tenth.ID, convey.ShouldEqual, seeded[9].ID)
				convey.So(tenth.Position, convey.ShouldEqual, 10)
				convey.So(tenth.CurrentPosition, convey.ShouldBeNil)
				convey.So(tenth.Annotation(150), convey.ShouldEqual, "Currently Legacy")
			})

			convey.Convey("Then the demons after it carry their new positions", func() {
				eleventh := snap.Demons[10]
				convey.So(eleventh.Position, convey.ShouldEqual, 11)
				convey.So(*eleventh.CurrentPosition, convey.ShouldEqual, 10)
				convey.So(eleventh.Annotation(150), convey.ShouldEqual, "Currently #10")
				convey.So(snap.Demons[0].Moved(), convey.ShouldBeFalse)
				convey.So(*snap.Demons[0].CurrentPosition, convey.ShouldEqual, 1)
				convey.So(snap.Demons[0].Annotation(150), convey.ShouldEqual, "")
			})
		})

		convey.Convey("When querying the instant the fifth demon was added", func() {
			snap, err := f.tm.At(f.ctx, addedAt[4])
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then later demons are omitted rather than shown as legacy", func() {
				convey.So(cmp.Diff([]string{"d1", "d2", "d3", "d4", "d5"}, names(snap)), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When querying now or later", func() {
			live, err := f.l.Live(f.ctx)
			convey.So(err, convey.ShouldBeNil)
			var want []string
			for _, d := range live {
				want = append(want, d.Name)
			}

			now, err := f.tm.At(f.ctx, f.clk.Now())
			convey.So(err, convey.ShouldBeNil)
			later, err := f.tm.At(f.ctx, f.clk.Now().Add(24*time.Hour))
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the live ordering is returned", func() {
				convey.So(now.Live, convey.ShouldBeTrue)
				convey.So(later.Live, convey.ShouldBeTrue)
				convey.So(cmp.Diff(want, names(now)), convey.ShouldBeEmpty)
				convey.So(cmp.Diff(want, names(later)), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When replaying just before now", func() {
			past, err := f.tm.At(f.ctx, f.clk.Now().Add(-time.Nanosecond))
			convey.So(err, convey.ShouldBeNil)
			now, err := f.tm.At(f.ctx, f.clk.Now())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the log replay agrees with the live ledger", func() {
				convey.So(past.Live, convey.ShouldBeFalse)
				convey.So(cmp.Diff(now.Demons, past.Demons), convey.ShouldBeEmpty)
			})
		})
	})
}

// tickingClock advances by one millisecond on every read.
type tickingClock struct{ t time.Time }

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func TestReconstructor_NoPartialOperations(t *testing.T) {
	convey.Convey("Given a ledger whose clock ticks on every read", t, func() {
		ctx := context.Background()
		if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
			t.Fatal(err)
		}
		clk := &tickingClock{t: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
		store := repository.NewMemoryStore()
		l := ledger.New(store, ledger.WithClock(clk.Now))
		far := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
		tm := timemachine.New(store, timemachine.WithClock(func() time.Time { return far }))

		var c model.Demon
		for i, name := range []string{"A", "B", "C"} {
			d, err := l.Insert(ctx, model.NewDemon{Name: name, Position: i + 1, Requirement: 50, Publisher: "p", Verifier: "v"})
			convey.So(err, convey.ShouldBeNil)
			c = d
		}

		convey.Convey("When C moves to the top", func() {
			start := clk.t
			_, err := l.Move(ctx, c.ID, 1)
			convey.So(err, convey.ShouldBeNil)
			end := clk.t.Add(time.Millisecond)

			convey.Convey("Then every instant across the move shows a dense list", func() {
				for at := start; !at.After(end); at = at.Add(time.Millisecond) {
					snap, err := tm.At(ctx, at)
					convey.So(err, convey.ShouldBeNil)
					var got []int
					for _, d := range snap.Demons {
						got = append(got, d.Position)
					}
					convey.So(cmp.Diff([]int{1, 2, 3}, got), convey.ShouldBeEmpty)
				}
			})

			convey.Convey("Then the list flips from before to after in one step", func() {
				before, err := tm.At(ctx, start)
				convey.So(err, convey.ShouldBeNil)
				after, err := tm.At(ctx, end)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cmp.Diff([]string{"A", "B", "C"}, names(before)), convey.ShouldBeEmpty)
				convey.So(cmp.Diff([]string{"C", "A", "B"}, names(after)), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestReconstructor_Bounds(t *testing.T) {
	convey.Convey("Given demons added in late 2016", t, func() {
		f := newFixture(t, time.Date(2016, 12, 1, 0, 0, 0, 0, time.UTC))
		f.insert("Cadrega City", 1)
		f.insert("Sonic Wave", 2)
		f.clk.t = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		convey.Convey("When querying a date before the minimum", func() {
			snap, err := f.tm.At(f.ctx, time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC))

			convey.Convey("Then the instant is clamped to the fourth of January 2017", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(snap.At.Equal(timemachine.DefaultMinimum), convey.ShouldBeTrue)
				convey.So(cmp.Diff([]string{"Cadrega City", "Sonic Wave"}, names(snap)), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the minimum is configured later", func() {
			floor := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			tm := timemachine.New(f.store, timemachine.WithClock(f.clk.Now), timemachine.WithMinimum(floor))
			snap, err := tm.At(f.ctx, time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC))

			convey.So(err, convey.ShouldBeNil)
			convey.So(snap.At.Equal(floor), convey.ShouldBeTrue)
		})
	})
}

func TestReconstructor_InconsistentLog(t *testing.T) {
	convey.Convey("Given a demon whose log has no addition entry", t, func() {
		f := newFixture(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
		f.insert("Tartarus", 1)

		f.clk.Advance(time.Hour)
		tx, err := f.store.BeginTx(f.ctx)
		convey.So(err, convey.ShouldBeNil)
		orphan, err := tx.CreateDemon(f.ctx, model.NewDemon{Name: "Orphan", Position: 2, Requirement: 100, Publisher: "a", Verifier: "a"})
		convey.So(err, convey.ShouldBeNil)
		convey.So(tx.AppendEvent(f.ctx, model.PositionEvent{
			DemonID: orphan.ID, Position: model.IntPtr(2), Time: f.clk.Now(), Kind: model.EventModification,
		}), convey.ShouldBeNil)
		convey.So(tx.Commit(), convey.ShouldBeNil)
		f.clk.Advance(time.Hour)

		convey.Convey("When reconstructing after it", func() {
			snap, err := f.tm.At(f.ctx, f.clk.Now().Add(-time.Minute))

			convey.Convey("Then the earliest entry stands in for the addition", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cmp.Diff([]string{"Tartarus", "Orphan"}, names(snap)), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When reading its movement history", func() {
			moves, err := f.tm.Movements(f.ctx, orphan.ID)

			convey.Convey("Then it starts with a synthesized addition", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(moves), convey.ShouldEqual, 1)
				convey.So(moves[0].Kind, convey.ShouldEqual, model.EventAddition)
				convey.So(moves[0].Position, convey.ShouldEqual, 2)
			})
		})
	})
}

func TestReconstructor_Movements(t *testing.T) {
	convey.Convey("Given a demon that was added, moved twice and removed", t, func() {
		f := newFixture(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
		f.insert("Zodiac", 1)
		d := f.insert("Kenos", 2)
		f.insert("Abyss of Darkness", 3)

		f.clk.Advance(time.Hour)
		_, err := f.l.Move(f.ctx, d.ID, 1)
		convey.So(err, convey.ShouldBeNil)
		f.clk.Advance(time.Hour)
		_, err = f.l.Move(f.ctx, d.ID, 3)
		convey.So(err, convey.ShouldBeNil)
		f.clk.Advance(time.Hour)
		_, err = f.l.Remove(f.ctx, d.ID)
		convey.So(err, convey.ShouldBeNil)

		moves, err := f.tm.Movements(f.ctx, d.ID)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then the history lists the addition then each ranked position", func() {
			var got []model.EventKind
			var pos []int
			for _, m := range moves {
				got = append(got, m.Kind)
				pos = append(pos, m.Position)
			}
			convey.So(cmp.Diff([]model.EventKind{model.EventAddition, model.EventModification, model.EventModification}, got), convey.ShouldBeEmpty)
			convey.So(cmp.Diff([]int{2, 1, 3}, pos), convey.ShouldBeEmpty)
		})

		convey.Convey("Then an unknown demon is reported as not found", func() {
			_, err := f.tm.Movements(f.ctx, 404)
			convey.So(errors.Is(err, model.ErrNotFound), convey.ShouldBeTrue)
		})
	})
}
