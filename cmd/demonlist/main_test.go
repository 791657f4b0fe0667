package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	service "github.com/pointercrate/demonlist/internal/app"
	"github.com/pointercrate/demonlist/internal/config"
	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

func init() {
	_ = logger.Init(logger.WithWriter(io.Discard))
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("DEMONLIST_ADDR", ":8080")
		t.Setenv("DEMONLIST_QUEUE_SIZE", "1000")
		t.Setenv("DEMONLIST_WORKER_COUNT", "4")
		t.Setenv("DEMONLIST_LIST_SIZE", "50")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			convey.So(cfg.ListSize, convey.ShouldEqual, 50)
		})
	})

	convey.Convey("Given an empty listen address", t, func() {
		t.Setenv("DEMONLIST_ADDR", "")

		convey.Convey("Then run refuses to start", func() {
			err := run(context.Background())
			convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
		})
	})
}

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given a config naming a metrics instance", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsInstance = "eu-1"
		defer metrics.Configure()

		registry := metrics.Configure(metricsOptions(cfg)...)
		metrics.UpdateLedgerMaxPosition(7)

		convey.Convey("Then every series carries the namespace and the instance label", func() {
			families, err := registry.Gather()
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(families), convey.ShouldBeGreaterThan, 0)
			for _, f := range families {
				convey.So(f.GetName(), convey.ShouldStartWith, "pointercrate_demonlist_")
				for _, m := range f.GetMetric() {
					var instance string
					for _, l := range m.GetLabel() {
						if l.GetName() == "instance" {
							instance = l.GetValue()
						}
					}
					convey.So(instance, convey.ShouldEqual, "eu-1")
				}
			}
		})
	})
}

func TestMux(t *testing.T) {
	convey.Convey("Given a started service and the process mux", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		svc := service.New(service.WithWorkerCount(1))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := newMux(ctx, svc, cfg)

		get := func(path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			return rec
		}

		convey.Convey("Then API routes are served", func() {
			rec := get("/api/v1/list_information")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"list_size":75`)
		})

		convey.Convey("And the docs routes are served", func() {
			convey.So(get("/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(get("/api-docs").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("And the metric updaters do not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(ctx, svc) }, convey.ShouldNotPanic)
		})
	})
}

func TestRunShutdown(t *testing.T) {
	convey.Convey("Given a context that ends shortly after start", t, func() {
		t.Setenv("DEMONLIST_ADDR", "127.0.0.1:0")
		t.Setenv("DEMONLIST_DATABASE_PATH", filepath.Join(t.TempDir(), "demonlist.db"))
		t.Setenv("DEMONLIST_LOG_LEVEL", "error")

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		convey.Convey("Then run opens the database and shuts down cleanly", func() {
			done := make(chan error, 1)
			go func() { done <- run(ctx) }()

			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(10 * time.Second):
				t.Fatal("run did not return")
			}
			_ = logger.Init(logger.WithWriter(io.Discard))
		})
	})
}
