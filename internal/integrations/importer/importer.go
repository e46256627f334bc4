package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/integrations"
	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Config struct {
	WatchDir string `json:"watch_dir"` // np. ~/dflexsync/excel_in
	PollSec  int    `json:"poll_sec"`
	Sheet    Sheet  `json:"sheet"`
}

// Result – podsumowanie jednego pliku (trafia też do import_files)
type Result struct {
	ImportID   uint `json:"import_id"`
	Already    bool `json:"already"` // ten sam SHA był już przetworzony
	Applied    int  `json:"applied"`
	Skipped    int  `json:"skipped"`
	NotFound   int  `json:"not_found"`
	Duplicates int  `json:"duplicates"`
	EmptyValue int  `json:"empty_value"`
	InvalidNV  int  `json:"invalid_nv"`
}

type Importer struct {
	log   zerolog.Logger
	cfg   Config
	store *preprod.GormStore

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log zerolog.Logger, cfg Config, store *preprod.GormStore) *Importer {
	cfg.Sheet = cfg.Sheet.withDefaults()
	return &Importer{log: log, cfg: cfg, store: store}
}

func (i *Importer) Name() string { return "importer" }

func (i *Importer) Start(ctx context.Context) error {
	i.ctx, i.cancel = context.WithCancel(ctx)
	i.log.Info().Str("integration", i.Name()).Msg("start")

	if strings.TrimSpace(i.cfg.WatchDir) == "" {
		return errors.New("importer: brak watch_dir")
	}
	dir := expandHome(i.cfg.WatchDir)
	_ = os.MkdirAll(dir, 0o755)

	ticker := time.NewTicker(i.interval())
	defer ticker.Stop()

	// pierwszy przebieg
	i.scanOnce(i.ctx, dir)

	for {
		select {
		case <-i.ctx.Done():
			i.log.Info().Str("integration", i.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			i.scanOnce(i.ctx, dir)
		}
	}
}

func (i *Importer) Stop() {
	if i.cancel != nil {
		i.cancel()
	}
}

func (i *Importer) interval() time.Duration {
	if i.cfg.PollSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(i.cfg.PollSec) * time.Second
}

func (i *Importer) scanOnce(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		i.log.Error().Err(err).Str("dir", dir).Msg("nie mogę odczytać katalogu")
		return
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		name := e.Name()
		// ~$plik.xlsx – plik blokady Excela
		if e.IsDir() || strings.HasPrefix(name, "~$") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		res, err := i.ImportFile(ctx, filepath.Join(dir, name))
		if err != nil {
			i.log.Error().Err(err).Str("file", name).Msg("błąd importu arkusza")
			continue
		}
		if res.Already {
			i.log.Debug().Str("file", name).Msg("plik już był i DONE — pomijam")
		}
	}
}

// ImportFile – rejestracja (dedup po SHA256) + przetworzenie arkusza.
// Plik ze statusem DONE nie jest przetwarzany drugi raz.
func (i *Importer) ImportFile(ctx context.Context, fullPath string) (Result, error) {
	gdb := i.store.DB().WithContext(ctx)
	name := filepath.Base(fullPath)

	importID, already, err := i.registerFile(gdb, fullPath, name)
	if err != nil {
		return Result{}, fmt.Errorf("rejestracja pliku: %w", err)
	}
	if already {
		var rec db.ImportFile
		if err := gdb.Where("import_id = ?", importID).Take(&rec).Error; err == nil && rec.Status == db.ImportDone {
			return Result{ImportID: importID, Already: true}, nil
		}
		i.log.Warn().Str("file", name).Uint("import_id", importID).Msg("plik istnieje, ale nie DONE — ponawiam przetwarzanie")
	}

	res, err := i.processFile(ctx, fullPath)
	res.ImportID = importID
	if err != nil {
		_ = gdb.Model(&db.ImportFile{}).Where("import_id = ?", importID).
			Updates(map[string]any{"status": db.ImportError, "last_error": err.Error()}).Error
		return res, err
	}

	now := time.Now()
	_ = gdb.Model(&db.ImportFile{}).Where("import_id = ?", importID).
		Updates(map[string]any{
			"status":       db.ImportDone,
			"applied":      res.Applied,
			"skipped":      res.Skipped,
			"not_found":    res.NotFound,
			"last_error":   "",
			"processed_at": now,
		}).Error

	i.log.Info().
		Str("file", name).
		Uint("import_id", importID).
		Int("applied", res.Applied).
		Int("not_found", res.NotFound).
		Int("duplicates", res.Duplicates).
		Msg("przetworzono OK")
	return res, nil
}

func (i *Importer) processFile(ctx context.Context, fullPath string) (Result, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return i.Apply(ctx, f)
}

// Apply – arkusz z dowolnego źródła: tylko NV istniejące w bazie/nakładce,
// zmiany idą jedną transakcją przez BulkEdit.
func (i *Importer) Apply(ctx context.Context, r io.Reader) (Result, error) {
	parsed, err := ParseWorkbook(r, i.cfg.Sheet)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Duplicates: parsed.Duplicates,
		EmptyValue: parsed.EmptyValue,
		InvalidNV:  parsed.InvalidNV,
	}
	if len(parsed.Updates) == 0 {
		return res, nil
	}

	nvs := make([]int64, 0, len(parsed.Updates))
	for _, u := range parsed.Updates {
		nvs = append(nvs, u.NV)
	}
	known, err := i.store.Exists(ctx, nvs)
	if err != nil {
		return res, err
	}

	found := &Parsed{}
	for _, u := range parsed.Updates {
		if !known[u.NV] {
			res.NotFound++
			i.log.Debug().Int("row", u.Row).Int64("nv", u.NV).Msg("NV z arkusza nie istnieje")
			continue
		}
		found.Updates = append(found.Updates, u)
	}

	br, err := i.store.BulkEdit(ctx, found.Edits(i.cfg.Sheet.Field))
	if err != nil {
		return res, err
	}
	res.Applied = br.Applied
	res.Skipped = br.Skipped
	return res, nil
}

func (i *Importer) registerFile(gdb *gorm.DB, fullPath, name string) (uint, bool, error) {
	fi, err := os.Stat(fullPath)
	if err != nil {
		return 0, false, err
	}

	h, err := fileSHA256(fullPath)
	if err != nil {
		return 0, false, err
	}

	// idempotencja po SHA (ta sama nazwa z nową treścią = nowy import)
	var existing db.ImportFile
	if err := gdb.Where("sha256 = ?", h).Take(&existing).Error; err == nil {
		return existing.ImportID, true, nil
	}

	rec := db.ImportFile{
		Filename:  name,
		SHA256:    h,
		SizeBytes: fi.Size(),
		Status:    db.ImportPending,
	}
	if err := gdb.Create(&rec).Error; err != nil {
		return 0, false, err
	}
	return rec.ImportID, false, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func factory(log zerolog.Logger, raw json.RawMessage, deps integrations.Deps) (integrations.Integration, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.New("importer: brak store")
	}
	return New(log, cfg, deps.Store), nil
}

func init() {
	integrations.Register("importer", factory)
}
