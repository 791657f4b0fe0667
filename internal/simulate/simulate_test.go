package simulate

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/pointercrate/demonlist/internal/adapters/repository"
	"github.com/pointercrate/demonlist/pkg/logger"
)

func init() {
	_ = logger.Init(logger.WithWriter(io.Discard))
}

func TestSimulatorMemory(t *testing.T) {
	Convey("Given a simulator over the memory store", t, func() {
		ctx := context.Background()

		Convey("A default run keeps positions dense and replays every checkpoint", func() {
			stats, err := New(repository.NewMemoryStore(), DefaultConfig()).Run(ctx)
			So(err, ShouldBeNil)
			So(stats.Steps, ShouldEqual, 200)
			So(stats.Checkpoints, ShouldEqual, 201)
			So(stats.Inserts, ShouldBeGreaterThan, 20)
			So(stats.Moves, ShouldBeGreaterThan, 0)
			So(stats.Removes, ShouldBeGreaterThan, 0)
			So(stats.Rejected, ShouldBeGreaterThan, 0)
		})

		Convey("Several seeds pass", func() {
			for seed := uint64(2); seed < 8; seed++ {
				cfg := DefaultConfig()
				cfg.Seed = seed
				cfg.Steps = 80
				cfg.InitialDemons = 3
				_, err := New(repository.NewMemoryStore(), cfg).Run(ctx)
				So(err, ShouldBeNil)
			}
		})

		Convey("Equal seeds produce equal runs", func() {
			cfg := DefaultConfig()
			cfg.Seed = 42
			a, err := New(repository.NewMemoryStore(), cfg).Run(ctx)
			So(err, ShouldBeNil)
			b, err := New(repository.NewMemoryStore(), cfg).Run(ctx)
			So(err, ShouldBeNil)
			a.Duration, b.Duration = 0, 0
			So(a, ShouldResemble, b)
		})

		Convey("An empty start only inserts until something is ranked", func() {
			cfg := DefaultConfig()
			cfg.InitialDemons = 0
			cfg.Steps = 30
			cfg.CheckEvery = 5
			stats, err := New(repository.NewMemoryStore(), cfg).Run(ctx)
			So(err, ShouldBeNil)
			So(stats.Checkpoints, ShouldEqual, 7)
		})

		Convey("A cancelled context stops the run", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			cfg := DefaultConfig()
			cfg.InitialDemons = 0
			_, err := New(repository.NewMemoryStore(), cfg).Run(cctx)
			So(err, ShouldEqual, context.Canceled)
		})
	})
}

func TestSimulatorSQLite(t *testing.T) {
	Convey("Given a simulator over a SQLite database", t, func() {
		ctx := context.Background()
		store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "sim.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		cfg := DefaultConfig()
		cfg.Steps = 60
		cfg.InitialDemons = 10
		cfg.Tick = time.Millisecond

		stats, err := New(store, cfg).Run(ctx)
		So(err, ShouldBeNil)
		So(stats.Checkpoints, ShouldEqual, 61)
	})
}

func TestDiffEntries(t *testing.T) {
	Convey("diffEntries reports position changes", t, func() {
		a := []entry{{ID: 1, Position: 1, Name: "a"}, {ID: 2, Position: 2, Name: "b"}}
		b := []entry{{ID: 2, Position: 1, Name: "b"}, {ID: 1, Position: 2, Name: "a"}}
		So(diffEntries(a, a), ShouldBeEmpty)
		So(diffEntries(a, b), ShouldNotBeEmpty)
	})
}
