package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/rs/zerolog"
)

// ProcessFunc – przetworzenie jednej paczki (w praktyce Reconciler.SyncBatch)
type ProcessFunc func(ctx context.Context, rows []preprod.Row) (preprod.Stats, error)

// Queue skleja zgłoszenia po NV (ostatnie wygrywa) i drenuje je w jednej gorutynie.
// Dwa wywołania Enqueue w trakcie drenowania nie uruchomią drugiego workera.
type Queue struct {
	log     zerolog.Logger
	ctx     context.Context
	process ProcessFunc

	mu      sync.Mutex
	pending map[int64]preprod.Row
	order   []int64       // kolejność pierwszego zgłoszenia
	running bool          // czy worker żyje
	idle    chan struct{} // zamykany, gdy worker kończy
}

// NewQueue – ctx żyje tyle co proces (nie request), bo praca idzie w tle
func NewQueue(ctx context.Context, log zerolog.Logger, process ProcessFunc) *Queue {
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		log:     log,
		ctx:     ctx,
		process: process,
		pending: map[int64]preprod.Row{},
		idle:    idle,
	}
}

// Enqueue zwraca liczbę przyjętych wierszy (bez poprawnego NV są pomijane)
func (q *Queue) Enqueue(rows []preprod.Row) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := 0
	for _, r := range rows {
		nv, ok := preprod.ParseNV(r[preprod.FieldNV])
		if !ok {
			continue
		}
		if _, dup := q.pending[nv]; !dup {
			q.order = append(q.order, nv)
		}
		q.pending[nv] = r
		accepted++
	}
	queueEnqueued.Add(float64(accepted))
	queuePending.Set(float64(len(q.pending)))

	if accepted > 0 && !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.drain(q.idle)
	}
	return accepted
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Wait czeka aż kolejka będzie pusta i worker zakończy pracę
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.idle
		done := !q.running && len(q.pending) == 0
		q.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) drain(idle chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(idle)
			q.mu.Unlock()
			return
		}
		batch := make([]preprod.Row, 0, len(q.order))
		for _, nv := range q.order {
			batch = append(batch, q.pending[nv])
		}
		q.pending = map[int64]preprod.Row{}
		q.order = nil
		queuePending.Set(0)
		q.mu.Unlock()

		q.runBatch(batch)
	}
}

// runBatch – błąd (także panika) jednej paczki nie zatrzymuje pętli
func (q *Queue) runBatch(batch []preprod.Row) {
	start := time.Now()
	defer func() {
		syncBatchDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			syncBatches.WithLabelValues("panic").Inc()
			q.log.Error().Err(fmt.Errorf("%v", r)).Int("rows", len(batch)).Msg("sync queue: panika w paczce")
		}
	}()

	st, err := q.process(q.ctx, batch)
	if err != nil {
		syncBatches.WithLabelValues("error").Inc()
		q.log.Error().Err(err).Int("rows", len(batch)).Msg("sync queue: paczka nieudana")
		return
	}
	syncBatches.WithLabelValues("ok").Inc()
	syncRows.WithLabelValues("synced").Add(float64(st.Synced))
	syncRows.WithLabelValues("skipped").Add(float64(st.Skipped))
	syncRows.WithLabelValues("failed").Add(float64(st.Failed))
	q.log.Debug().
		Int("rows", len(batch)).
		Int("synced", st.Synced).
		Dur("took", time.Since(start)).
		Msg("sync queue: paczka gotowa")
}
