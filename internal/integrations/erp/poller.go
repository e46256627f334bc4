package erp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/integrations"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Poller – okresowy odczyt Pre_Produccion i wrzucenie wierszy do kolejki synchronizacji
type Poller struct {
	log    zerolog.Logger
	cfg    Config
	reader *Reader
	queue  integrations.Enqueuer
	db     *gorm.DB

	ctx    context.Context
	cancel context.CancelFunc
}

func NewPoller(log zerolog.Logger, cfg Config, reader *Reader, queue integrations.Enqueuer, gdb *gorm.DB) *Poller {
	return &Poller{log: log, cfg: cfg, reader: reader, queue: queue, db: gdb}
}

func (p *Poller) Name() string { return "erp" }

func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	defer p.reader.Close()

	if p.cfg.PollSec <= 0 {
		p.log.Info().Str("integration", p.Name()).Msg("poll_sec=0 – tylko odczyt na żądanie")
		<-p.ctx.Done()
		return nil
	}

	p.log.Info().Str("integration", p.Name()).Int("poll_sec", p.cfg.PollSec).Msg("start")
	ticker := time.NewTicker(time.Duration(p.cfg.PollSec) * time.Second)
	defer ticker.Stop()

	if _, err := p.PollOnce(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("erp: odczyt nieudany")
	}
	for {
		select {
		case <-p.ctx.Done():
			p.log.Info().Str("integration", p.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			if _, err := p.PollOnce(p.ctx); err != nil {
				p.log.Error().Err(err).Msg("erp: odczyt nieudany")
			}
		}
	}
}

func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// PollOnce zwraca liczbę wierszy przyjętych przez kolejkę
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	rows, err := p.reader.PreProduccion(ctx, nil)
	if err != nil {
		return 0, err
	}
	n := p.queue.Enqueue(rows)
	if p.db != nil {
		if err := db.SetKV(ctx, p.db, db.KeyERPLastSync, time.Now().UTC().Format(time.RFC3339)); err != nil {
			p.log.Warn().Err(err).Msg("nie można zapisać erp.last_sync")
		}
	}
	p.log.Debug().Int("rows", len(rows)).Int("queued", n).Msg("erp: odczyt")
	return n, nil
}

func factory(log zerolog.Logger, raw json.RawMessage, deps integrations.Deps) (integrations.Integration, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if deps.Queue == nil {
		return nil, errors.New("erp: brak kolejki")
	}
	return NewPoller(log, cfg, NewReader(log, cfg), deps.Queue, deps.DB), nil
}

func init() {
	integrations.Register("erp", factory)
}
