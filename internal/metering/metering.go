// Package metering exposes the three per-context metrics spec.md §4.6
// names as prometheus.client_golang collectors, grounded on the
// teacher's pkg/metrics/metrics.go (package-level *Vec variables
// registered once via prometheus.MustRegister, one label set per
// dimension that matters — here "context_id" instead of "role"/"state").
package metering

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FnGiBSec accumulates heap-cap-in-GiB times invocation duration in
	// seconds, per context — the core's billing-style "how much compute
	// did this tenant use" counter.
	FnGiBSec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voidmerge_fn_gib_sec_total",
			Help: "Cumulative heap-GiB-seconds consumed by function invocations, by context",
		},
		[]string{"context_id"},
	)

	// EgressGiB sums response body sizes in GiB, per context.
	EgressGiB = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voidmerge_egress_gib_total",
			Help: "Cumulative response body bytes (GiB) returned to callers, by context",
		},
		[]string{"context_id"},
	)

	// StorageGiB is the current total size (GiB) of visible objects for
	// a context; it is a gauge since it reflects point-in-time state.
	StorageGiB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voidmerge_storage_gib",
			Help: "Current total size (GiB) of visible objects, by context",
		},
		[]string{"context_id"},
	)
)

func init() {
	prometheus.MustRegister(FnGiBSec)
	prometheus.MustRegister(EgressGiB)
	prometheus.MustRegister(StorageGiB)
}

const bytesPerGiB = 1024 * 1024 * 1024

// RecordInvocation adds heapCapBytes*durationSecs (converted to
// GiB-seconds) to FnGiBSec for ctxID.
func RecordInvocation(ctxID string, heapCapBytes uint64, duration time.Duration) {
	gib := float64(heapCapBytes) / bytesPerGiB
	FnGiBSec.WithLabelValues(ctxID).Add(gib * duration.Seconds())
}

// RecordEgress adds responseBytes (converted to GiB) to EgressGiB for ctxID.
func RecordEgress(ctxID string, responseBytes int) {
	EgressGiB.WithLabelValues(ctxID).Add(float64(responseBytes) / bytesPerGiB)
}

// StorageSource reports the current visible-object byte total, keyed by
// context id — satisfied by objstore.Store.Meter and by
// server.Server.MeterAll, which aggregates it across tenant stores.
type StorageSource func() map[string]uint64

// Snapshotter periodically reads a StorageSource and publishes it to
// StorageGiB, the Go analogue of the original implementation's
// MemIndex::meter() being read by a periodic reporting task — grounded
// on the teacher's pkg/metrics/collector.go Collector (ticker-driven,
// stoppable via a close-channel).
type Snapshotter struct {
	source   StorageSource
	interval time.Duration
	stopCh   chan struct{}
}

// NewSnapshotter builds a Snapshotter that samples source every interval
// (spec.md §4.6 default: 5 minutes).
func NewSnapshotter(source StorageSource, interval time.Duration) *Snapshotter {
	return &Snapshotter{source: source, interval: interval, stopCh: make(chan struct{})}
}

// Start begins sampling in a background goroutine, sampling once
// immediately before the first tick.
func (s *Snapshotter) Start() {
	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		s.snapshot()
		for {
			select {
			case <-s.stopCh:
				return
			case <-t.C:
				s.snapshot()
			}
		}
	}()
}

// Stop halts the background sampling goroutine.
func (s *Snapshotter) Stop() { close(s.stopCh) }

func (s *Snapshotter) snapshot() {
	for ctxID, bytes := range s.source() {
		StorageGiB.WithLabelValues(ctxID).Set(float64(bytes) / bytesPerGiB)
	}
}
