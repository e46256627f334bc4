package erp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
)

// Reader – połączenie z ERP otwierane leniwie przy pierwszym odczycie i trzymane do Close
type Reader struct {
	log  zerolog.Logger
	cfg  Config
	term *terminados

	mu  sync.Mutex
	gdb *gorm.DB
}

func NewReader(log zerolog.Logger, cfg Config) *Reader {
	cfg = cfg.withDefaults()
	return &Reader{
		log:  log,
		cfg:  cfg,
		term: newTerminados(cfg.TerminadosFile, cfg.TerminadosCharset),
	}
}

// NewReaderWithDB – gotowe połączenie (narzędzia, testy na innym dialekcie)
func NewReaderWithDB(log zerolog.Logger, cfg Config, gdb *gorm.DB) *Reader {
	r := NewReader(log, cfg)
	r.gdb = gdb
	return r
}

func (r *Reader) conn() (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gdb != nil {
		return r.gdb, nil
	}

	dsn, err := r.cfg.DSN()
	if err != nil {
		return nil, err
	}
	host, port := r.cfg.HostPort()
	r.log.Info().Str("host", host).Int("port", port).Msg("łączę z SQL Server")

	gdb, err := gorm.Open(sqlserver.Open(dsn), &gorm.Config{
		Logger: db.NewGormLogger(r.log, false),
	})
	if err != nil {
		return nil, fmt.Errorf("erp open: %w", err)
	}
	r.gdb = gdb
	return gdb, nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gdb == nil {
		return nil
	}
	sqlDB, err := r.gdb.DB()
	r.gdb = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PreProduccion – najnowsze wiersze (ID malejąco), opcjonalnie jedno NV.
// NV z pliku terminados są pomijane.
func (r *Reader) PreProduccion(ctx context.Context, nv *int64) ([]preprod.Row, error) {
	gdb, err := r.conn()
	if err != nil {
		return nil, err
	}

	q := gdb.WithContext(ctx).Table(r.cfg.Table)
	if nv != nil {
		q = q.Where("NV = ?", *nv)
	}
	var recs []map[string]any
	if err := q.Order("ID DESC").Limit(r.cfg.Limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("erp %s: %w", r.cfg.Table, err)
	}

	done, err := r.term.Set()
	if err != nil {
		// brak listy nie blokuje odczytu
		r.log.Warn().Err(err).Str("file", r.cfg.TerminadosFile).Msg("nie można odczytać NV terminados")
		done = map[string]struct{}{}
	}

	out := make([]preprod.Row, 0, len(recs))
	for _, rec := range recs {
		row := normalizeValues(rec)
		if _, finished := done[nvKey(row[preprod.FieldNV])]; finished {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// normalizeValues – DECIMAL/NUMERIC przychodzą z mssql jako []byte
func normalizeValues(rec map[string]any) preprod.Row {
	out := make(preprod.Row, len(rec))
	for k, v := range rec {
		if b, ok := v.([]byte); ok {
			s := string(b)
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				out[k] = f
			} else {
				out[k] = s
			}
			continue
		}
		out[k] = v
	}
	return out
}

func nvKey(v any) string {
	if n, ok := preprod.ParseNV(v); ok {
		return strconv.FormatInt(n, 10)
	}
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
