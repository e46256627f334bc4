package preprod

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bartek5186/dflexsync/internal/formula"
	"github.com/rs/zerolog"
)

// Formulas – skompilowany zestaw formuł + kolumny chronione przed "ręcznymi poprawkami"
type Formulas struct {
	Set       formula.Set
	Protected map[string]struct{}
	Errors    map[string]error
}

// CompileFormulas: chronione są kolumny z niepustą formułą (także te z błędem składni,
// bo ich wartość w nakładce pochodzi z formuły) oraz lado_mas_alto i calc_espada.
func CompileFormulas(defs []formula.Definition) *Formulas {
	set, errs := formula.CompileAll(defs)
	prot := make(map[string]struct{}, len(defs)+len(derivedFields))
	for _, d := range defs {
		if strings.TrimSpace(d.Expression) != "" {
			prot[d.Column] = struct{}{}
		}
	}
	for _, f := range derivedFields {
		prot[f] = struct{}{}
	}
	return &Formulas{Set: set, Protected: prot, Errors: errs}
}

// Stats – wynik jednej paczki synchronizacji
type Stats struct {
	Synced  int
	Skipped int
	Failed  int
}

type Reconciler struct {
	store Store
	log   zerolog.Logger
}

func NewReconciler(store Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

func (r *Reconciler) LoadFormulas(ctx context.Context) (*Formulas, error) {
	defs, err := r.store.Formulas(ctx)
	if err != nil {
		return nil, err
	}
	fs := CompileFormulas(defs)
	for col, cerr := range fs.Errors {
		r.log.Error().Err(cerr).Str("column", col).Msg("nie można skompilować formuły")
	}
	return fs, nil
}

// SyncBatch – formuły ładowane raz, wiersze po kolei. Błąd wiersza nie zatrzymuje paczki.
func (r *Reconciler) SyncBatch(ctx context.Context, rows []Row) (Stats, error) {
	var st Stats
	if len(rows) == 0 {
		return st, nil
	}
	fs, err := r.LoadFormulas(ctx)
	if err != nil {
		return st, fmt.Errorf("formuły: %w", err)
	}

	for _, row := range rows {
		if _, err := r.Ingest(ctx, row, fs); err != nil {
			if errors.Is(err, ErrInvalidNV) {
				st.Skipped++
				r.log.Debug().Interface("nv", row[FieldNV]).Msg("wiersz bez NV – pomijam")
				continue
			}
			st.Failed++
			r.log.Error().Err(err).Interface("nv", row[FieldNV]).Msg("sync wiersza nieudany")
			continue
		}
		st.Synced++
	}

	r.log.Info().
		Int("synced", st.Synced).
		Int("skipped", st.Skipped).
		Int("failed", st.Failed).
		Msg("preproduccion sync batch")
	return st, nil
}

// Ingest: pola pochodne -> snapshot surowy -> przeliczona nakładka.
// Zwraca nowy payload nakładki.
func (r *Reconciler) Ingest(ctx context.Context, raw Row, fs *Formulas) (Row, error) {
	nv, ok := ParseNV(raw[FieldNV])
	if !ok {
		return nil, ErrInvalidNV
	}
	if fs == nil {
		fs = CompileFormulas(nil)
	}

	row, err := NormalizeRow(raw)
	if err != nil {
		return nil, err
	}
	if err := InjectDerived(row); err != nil {
		r.log.Warn().Err(err).Int64("nv", nv).Msg("nie można policzyć pól pochodnych")
	}

	var erpID *int64
	if id, ok := ParseNV(row[FieldID]); ok {
		erpID = &id
	}
	if err := r.store.UpsertRaw(ctx, nv, erpID, row); err != nil {
		return nil, err
	}

	payload := r.reconcile(ctx, nv, row, fs)
	if err := r.store.ReplaceOverlay(ctx, nv, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *Reconciler) reconcile(ctx context.Context, nv int64, ingested Row, fs *Formulas) Row {
	base, err := r.store.RawRow(ctx, nv)
	if err != nil {
		r.log.Warn().Err(err).Int64("nv", nv).Msg("nie można odczytać preproduccion_sql")
		base = nil
	}
	if base == nil {
		base = cloneRow(ingested)
	}

	existing, err := r.store.OverlayRow(ctx, nv)
	if err != nil {
		r.log.Warn().Err(err).Int64("nv", nv).Msg("nie można odczytać preproduccion_valores")
		existing = nil
	}

	return Recompute(base, existing, ingested, fs)
}

// Recompute – czysta część uzgadniania: ręczne poprawki zostają, formuły liczone
// od nowa z base+poprawki. Nakładka pozostaje minimalna (bez pól bazowych).
func Recompute(base, existing, ingested Row, fs *Formulas) Row {
	overrides := ManualOverrides(existing, base, fs.Protected)
	effective := merge(base, overrides)
	computed := formula.Evaluate(effective, fs.Set)

	for _, f := range derivedFields {
		if v, ok := ingested[f]; ok && v != nil {
			computed[f] = v
		}
	}
	return merge(overrides, computed)
}

// ManualOverrides – klucze nakładki spoza chronionych, różne od bazy (ścisłe porównanie)
func ManualOverrides(existing, base Row, protected map[string]struct{}) Row {
	out := Row{}
	for k, v := range existing {
		if _, ok := protected[k]; ok {
			continue
		}
		bv, inBase := base[k]
		if !inBase || !formula.Equal(v, bv) {
			out[k] = v
		}
	}
	return out
}
