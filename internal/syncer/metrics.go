package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dflexsync_queue_pending",
		Help: "NV waiting in the sync queue",
	})

	queueEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dflexsync_queue_enqueued_total",
		Help: "Rows accepted by the sync queue (before coalescing)",
	})

	// result: synced | skipped | failed
	syncRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dflexsync_sync_rows_total",
		Help: "Reconciled rows by result",
	}, []string{"result"})

	syncBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dflexsync_sync_batches_total",
		Help: "Drained batches by result",
	}, []string{"result"})

	syncBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dflexsync_sync_batch_duration_seconds",
		Help:    "Time spent reconciling one drained batch",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
	})

	heartbeats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dflexsync_syncer_heartbeats_total",
		Help: "Syncer loop ticks",
	})
)
