package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if jobsTotal == nil || postsPersistedTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestCounterHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(jobsTotal.WithLabelValues("done"))
	JobCompleted("done")
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("done")); got != before+1 {
		t.Errorf("Expected jobsTotal{done} to be %f, got %f", before+1, got)
	}

	before = testutil.ToFloat64(candidatesSkippedTotal.WithLabelValues("unparseable"))
	CandidateSkipped("unparseable")
	if got := testutil.ToFloat64(candidatesSkippedTotal.WithLabelValues("unparseable")); got != before+1 {
		t.Errorf("Expected candidatesSkippedTotal{unparseable} to be %f, got %f", before+1, got)
	}

	before = testutil.ToFloat64(postsDedupedTotal)
	PostDeduped()
	if got := testutil.ToFloat64(postsDedupedTotal); got != before+1 {
		t.Errorf("Expected postsDedupedTotal to be %f, got %f", before+1, got)
	}

	ObserveExtraction(250 * time.Millisecond)
	if val := testutil.CollectAndCount(extractionDurationSeconds); val <= 0 {
		t.Errorf("Expected extractionDurationSeconds to be observed, got %d", val)
	}
}
