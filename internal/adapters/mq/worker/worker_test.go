package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"

	queue "github.com/pointercrate/demonlist/internal/adapters/mq/queue"
	worker "github.com/pointercrate/demonlist/internal/adapters/mq/worker"
	model "github.com/pointercrate/demonlist/internal/domain/model"
	logging "github.com/pointercrate/demonlist/pkg/logger"
)

var errDisk = errors.New("disk full")

type mockStore struct {
	mu      sync.Mutex
	saved   map[string]model.Submission
	failFor map[string]bool
	delay   time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{saved: make(map[string]model.Submission), failFor: make(map[string]bool)}
}

func (m *mockStore) CreateRecord(ctx context.Context, sub model.Submission) (model.Record, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return model.Record{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[sub.ID] {
		return model.Record{}, errDisk
	}
	m.saved[sub.ID] = sub
	return model.Record{ID: int64(len(m.saved)), Progress: sub.Progress, Status: model.StatusSubmitted}, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func init() {
	if err := logging.Init(logging.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

func TestPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	convey.Convey("Given a pool of four workers over a queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		store := newMockStore()
		store.failFor["s-3"] = true

		var hookMu sync.Mutex
		var failedIDs []string
		pool := worker.NewPool(4, q, store, worker.WithFailureHook(func(_ context.Context, sub model.Submission, err error) {
			hookMu.Lock()
			defer hookMu.Unlock()
			if errors.Is(err, errDisk) {
				failedIDs = append(failedIDs, sub.ID)
			}
		}))

		for i := 0; i < 20; i++ {
			convey.So(q.Enqueue(ctx, model.Submission{ID: fmt.Sprintf("s-%d", i), DemonID: 1, Player: "p", Progress: 100}), convey.ShouldBeTrue)
		}

		pool.Start(ctx)
		err := pool.Shutdown(ctx)

		convey.Convey("When it shuts down", func() {
			convey.Convey("Then every queued submission was handled before exit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.count(), convey.ShouldEqual, 19)
				convey.So(pool.Processed(), convey.ShouldEqual, 19)
				convey.So(pool.Failed(), convey.ShouldEqual, 1)
			})

			convey.Convey("Then the failure hook saw the failed submission", func() {
				hookMu.Lock()
				defer hookMu.Unlock()
				convey.So(failedIDs, convey.ShouldResemble, []string{"s-3"})
			})

			convey.Convey("Then the queue no longer accepts submissions", func() {
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(q.Enqueue(ctx, model.Submission{ID: "late"}), convey.ShouldBeFalse)
			})

			convey.Convey("Then a second shutdown is harmless", func() {
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool_ShutdownTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	convey.Convey("Given a pool whose store is slow", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		store := newMockStore()
		store.delay = time.Hour
		pool := worker.NewPool(1, q, store)

		convey.So(q.Enqueue(context.Background(), model.Submission{ID: "slow"}), convey.ShouldBeTrue)
		pool.Start(context.Background())

		convey.Convey("When shutdown has only a short deadline", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(ctx)

			convey.Convey("Then it reports the timeout and still stops the workers", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(pool.Processed(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestPool_StartContextCanceled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	convey.Convey("Given a pool started on a context that is canceled before shutdown", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(20))
		store := newMockStore()
		store.delay = 5 * time.Millisecond
		pool := worker.NewPool(2, q, store)

		sigCtx, stop := context.WithCancel(context.Background())
		pool.Start(sigCtx)
		for i := 0; i < 10; i++ {
			convey.So(q.Enqueue(context.Background(), model.Submission{ID: fmt.Sprintf("s-%d", i)}), convey.ShouldBeTrue)
		}
		stop()

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every accepted submission is persisted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.count(), convey.ShouldEqual, 10)
				convey.So(pool.Processed(), convey.ShouldEqual, 10)
				convey.So(pool.Failed(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestPool_ShutdownBeforeStart(t *testing.T) {
	convey.Convey("Given a pool that was never started", t, func() {
		pool := worker.NewPool(2, queue.NewInMemoryQueue(), newMockStore())

		convey.Convey("Then shutdown returns immediately", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}
