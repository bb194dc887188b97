package metering

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordInvocationAccumulatesFnGiBSec(t *testing.T) {
	ctxID := "ctx-record-invocation"
	before := testutil.ToFloat64(FnGiBSec.WithLabelValues(ctxID))
	RecordInvocation(ctxID, 1024*1024*1024, time.Second)
	after := testutil.ToFloat64(FnGiBSec.WithLabelValues(ctxID))
	require.Greater(t, after, before)
}

func TestRecordEgressAccumulatesEgressGiB(t *testing.T) {
	ctxID := "ctx-record-egress"
	before := testutil.ToFloat64(EgressGiB.WithLabelValues(ctxID))
	RecordEgress(ctxID, bytesPerGiB)
	after := testutil.ToFloat64(EgressGiB.WithLabelValues(ctxID))
	require.InDelta(t, before+1, after, 1e-9)
}

func TestSnapshotterSetsStorageGiBFromSource(t *testing.T) {
	ctxID := "ctx-snapshot"
	src := func() map[string]uint64 { return map[string]uint64{ctxID: bytesPerGiB * 2} }
	s := NewSnapshotter(src, time.Hour)
	s.snapshot()
	require.InDelta(t, 2, testutil.ToFloat64(StorageGiB.WithLabelValues(ctxID)), 1e-9)
}

func TestSnapshotterStopAfterStartReturns(t *testing.T) {
	s := NewSnapshotter(func() map[string]uint64 { return nil }, time.Hour)
	s.Start()
	s.Stop()
}
