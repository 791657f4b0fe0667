package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then every collector is registered on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.ledgerMutations.WithLabelValues("insert", "ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "pointercrate_demonlist_")
			})
		})

		Convey("When creating with custom naming and labels", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("gdps"),
				WithSubsystem("list"),
				WithConstLabels(map[string]string{"fork": "1.9"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names and labels follow the options", func() {
				manager.ledgerMaxPosition.Set(12)
				expected := `
# HELP gdps_list_ledger_max_position Highest position currently assigned
# TYPE gdps_list_ledger_max_position gauge
gdps_list_ledger_max_position{fork="1.9"} 12
`
				err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "gdps_list_ledger_max_position")
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording ledger mutations", func() {
			before := testutil.ToFloat64(current().ledgerMutations.WithLabelValues("move", "ok"))
			RecordLedgerMutation("move", "ok")
			RecordLedgerMutation("move", "ok")

			Convey("Then the counter advances per call", func() {
				after := testutil.ToFloat64(current().ledgerMutations.WithLabelValues("move", "ok"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When updating gauges", func() {
			UpdateLedgerMaxPosition(150)
			UpdateQueueSize(7)

			Convey("Then the gauges hold the latest value", func() {
				So(testutil.ToFloat64(current().ledgerMaxPosition), ShouldEqual, 150)
				So(testutil.ToFloat64(current().queueSize), ShouldEqual, 7)
			})
		})

		Convey("When recording the remaining series", func() {
			Convey("Then nothing panics", func() {
				So(func() {
					RecordLedgerShift("insert", 40)
					RecordLedgerLatency("insert", 1.5)
					RecordListRead("live")
					RecordListRead("historical")
					RecordReconstructionLatency(3)
					RecordReconstructionAnomaly()
					RecordSubmissionEnqueued()
					RecordSubmissionDuplicate()
					RecordSubmissionPersisted()
					RecordSubmissionRejected("requirement")
					UpdateQueueCapacity(100)
					UpdateQueueUtilization(0.07)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(0.2)
					UpdateWorkerActiveCount(4)
					RecordWorkerProcessingLatency(2)
					RecordWorkerError()
					RecordHTTPRequest("demons", "GET", "200")
					RecordHTTPRequestDuration("demons", "GET", "200", 4)
					RecordRateLimited("add_demon")
					RecordErrorByComponent("ledger", "storage")
					RecordErrorByType("storage", "high")
					RecordErrorByEndpoint("demons", "POST", "client_error")
					RecordErrorLatency("http", "client_error", 1)
					RecordConfigReload("ok")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.3)
				}, ShouldNotPanic)
			})
		})

		Convey("When asking for the registry", func() {
			Convey("Then the active custom registry is returned", func() {
				So(GetRegistry(), ShouldEqual, active.Load().registry)
				So(GetRegistry(), ShouldNotEqual, prometheus.DefaultRegisterer)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		previous := GetRegistry()
		defer Configure()

		Convey("When configured with a namespace and an instance label", func() {
			registry := Configure(
				WithNamespace("gdps"),
				WithSubsystem("list"),
				WithConstLabels(map[string]string{"instance": "eu-1", "zone": ""}),
			)
			UpdateLedgerMaxPosition(42)

			Convey("Then package functions record on the new registry", func() {
				So(registry, ShouldNotEqual, previous)
				So(GetRegistry(), ShouldEqual, registry)
				expected := `
# HELP gdps_list_ledger_max_position Highest position currently assigned
# TYPE gdps_list_ledger_max_position gauge
gdps_list_ledger_max_position{instance="eu-1"} 42
`
				err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "gdps_list_ledger_max_position")
				So(err, ShouldBeNil)
			})
		})
	})
}
