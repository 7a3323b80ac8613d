package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager(WithRegistry(prometheus.NewRegistry()))
			So(manager, ShouldNotBeNil)
		})

		Convey("When creating with custom options", func() {
			manager := NewManager(
				WithNamespace("testns"),
				WithSubsystem("testsub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRegistry(prometheus.NewRegistry()),
			)
			So(manager, ShouldNotBeNil)
		})
	})
}

func TestRecordingHelpers(t *testing.T) {
	Convey("Given the package-level recording helpers", t, func() {
		Convey("Then recording never panics", func() {
			So(func() {
				RecordSyncCycle(12.5)
				RecordOwnerOutcome("ok")
				RecordOwnerOutcome("failed")
				RecordForceClear()
				RecordEventsAppended(3)
				RecordEventsRetracted(1)
				RecordReconcileLatency(0.5)
				RecordConflictRetry()
				RecordRankingUpserts(2)
				RecordRankingRebuild()
				RecordAggregateLatency(1.5)
				UpdateRankingSize(10)
				UpdateActiveEvents(20)
				SetInconsistencyFlagged(true)
				SetInconsistencyFlagged(false)
				RecordHTTPRequest("ranking", "GET", "200")
				RecordHTTPRequestDuration("ranking", "GET", "200", 3.2)
				RecordErrorByComponent("sync", "conflict")
			}, ShouldNotPanic)
		})

		Convey("Then the shared registry gathers the instruments", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(families, ShouldNotBeEmpty)
		})
	})
}
