// internal/syncer/syncer.go
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	conf "github.com/bartek5186/dflexsync/internal/config"
	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/integrations"
	_ "github.com/bartek5186/dflexsync/internal/integrations/erp" // rejestracja
	_ "github.com/bartek5186/dflexsync/internal/integrations/importer"
	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// wrapper na uruchomioną integrację (np. erp i importer)
type runningInt struct {
	Name string
	Inst integrations.Integration
}

type Syncer struct {
	log     zerolog.Logger // logowanie
	db      *gorm.DB       // baza aplikacji
	store   *preprod.GormStore
	queue   *Queue
	mu      sync.Mutex   // ochrona sekcji krytycznych
	cfg     *conf.Config // aktualna konfiguracja
	running bool         // czy syncer działa
	cancel  context.CancelFunc
	wg      sync.WaitGroup // śledzi goroutines
	ticks   uint64         // licznik heartbeatów
	ints    []runningInt   // lista aktywnych integracji
}

// New – kolejka synchronizacji działa także przy zatrzymanym syncerze. Anulowanie ctx
// (SIGTERM) nie przerywa jej pracy, żeby Queue().Wait mogło dokończyć zaległe wiersze.
func New(ctx context.Context, log zerolog.Logger, cfg *conf.Config, gdb *gorm.DB) *Syncer {
	store := preprod.NewGormStore(gdb)
	rec := preprod.NewReconciler(store, log.With().Str("component", "reconciler").Logger())
	return &Syncer{
		log:   log,
		cfg:   cfg,
		db:    gdb,
		store: store,
		queue: NewQueue(context.WithoutCancel(ctx), log.With().Str("component", "queue").Logger(), rec.SyncBatch),
	}
}

func (s *Syncer) Queue() *Queue { return s.queue }
func (s *Syncer) Store() *preprod.GormStore { return s.store }

func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.ticks = 0
	s.wg.Add(1)

	// zbuduj i odpal integracje
	ints := s.buildIntegrationsLocked()
	s.ints = ints
	s.mu.Unlock()

	s.log.Info().Msg("Syncer: start")
	go s.loop(ctx)

	// każda integracja w swojej gorutinie
	for i := range ints {
		s.wg.Add(1)
		go func(intg integrations.Integration) {
			defer s.wg.Done()
			if err := intg.Start(ctx); err != nil {
				s.log.Error().Err(err).Str("integration", intg.Name()).Msg("zakończona z błędem")
			}
		}(ints[i].Inst)
	}
	return nil
}

func (s *Syncer) deps() integrations.Deps {
	return integrations.Deps{DB: s.db, Store: s.store, Queue: s.queue}
}

func (s *Syncer) buildIntegrationsLocked() []runningInt {
	var out []runningInt
	if s.cfg == nil || len(s.cfg.Integrations) == 0 {
		s.log.Warn().Msg("Integrations: brak lub puste (sprawdź config.json)")
		return out
	}
	s.log.Info().Int("count", len(s.cfg.Integrations)).Msg("Integrations in config")
	for name, raw := range s.cfg.Integrations {
		s.log.Debug().Str("integration", name).Msg("Found integration in config")

		f, ok := integrations.Get(name)
		if !ok {
			s.log.Warn().Str("integration", name).Msg("brak fabryki – pomijam")
			continue
		}
		inst, err := f(s.log.With().Str("integration", name).Logger(), json.RawMessage(raw), s.deps())
		if err != nil {
			s.log.Error().Err(err).Str("integration", name).Msg("błąd inicjalizacji")
			continue
		}
		out = append(out, runningInt{Name: name, Inst: inst})
	}
	s.log.Info().Int("started", len(out)).Msg("Integrations built")
	return out
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	ints := s.ints
	s.ints = nil
	s.cancel = nil
	s.mu.Unlock()

	for _, ri := range ints {
		ri.Inst.Stop()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("Syncer: stop")
}

func (s *Syncer) UpdateConfig(cfg *conf.Config) {
	s.mu.Lock()
	s.cfg = cfg
	isRunning := s.running
	s.mu.Unlock()

	s.log.Info().Msg("Syncer: config zaktualizowany")

	if isRunning {
		// szybki restart integracji, żeby wzięły nową konfigurację
		s.log.Info().Msg("Syncer: restart integracji po zmianie configu")
		s.Stop()
		_ = s.Start(context.Background())
	}
}

func (s *Syncer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Syncer) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil && s.cfg.SyncIntervalSeconds > 0 {
		return time.Duration(s.cfg.SyncIntervalSeconds) * time.Second
	}
	return 30 * time.Second
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	// pierwszy strzał od razu
	s.tickOnce(ctx)

	cur := s.interval()
	ticker := time.NewTicker(cur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Syncer: koniec pętli")
			return
		case <-ticker.C:
			// jeśli ktoś zmienił interwał w cfg, odśwież ticker
			if next := s.interval(); next != cur {
				cur = next
				ticker.Reset(cur)
			}
			s.tickOnce(ctx)
		}
	}
}

// tickOnce – heartbeat: stan kolejki i ostatni odczyt z ERP
func (s *Syncer) tickOnce(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	heartbeats.Inc()
	last, err := db.GetKV(ctx, s.db, db.KeyERPLastSync)
	if err != nil {
		s.log.Warn().Err(err).Msg("Syncer: nie można odczytać erp.last_sync")
	}
	s.log.Debug().
		Uint64("tick", n).
		Int("pending", s.queue.Pending()).
		Bool("draining", s.queue.Running()).
		Str("erp_last_sync", last).
		Msg("Syncer: heartbeat")
}
