package preprod

import (
	"context"
	"errors"
	"fmt"

	"github.com/bartek5186/dflexsync/internal/db"
	"gorm.io/gorm"
)

const maxKeyLen = 200

// klucze odrzucane zawsze, niezależnie od języka (zgodność z klientami JS)
var forbiddenKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// Edit – ręczne zmiany jednego NV
type Edit struct {
	NV      int64          `json:"nv"`
	Changes map[string]any `json:"changes"`
}

type BulkResult struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// SanitizeChanges wycina puste, zakazane i zbyt długie klucze
func SanitizeChanges(changes map[string]any) map[string]any {
	out := make(map[string]any, len(changes))
	for k, v := range changes {
		if k == "" || len(k) > maxKeyLen {
			continue
		}
		if _, bad := forbiddenKeys[k]; bad {
			continue
		}
		out[k] = v
	}
	return out
}

// BulkEdit – wszystko w jednej transakcji: albo wszystkie NV, albo żadne.
// Zmiany są płytko scalane z istniejącą nakładką (nowe klucze nadpisują, reszta zostaje).
func (s *GormStore) BulkEdit(ctx context.Context, edits []Edit) (BulkResult, error) {
	var res BulkResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res = BulkResult{}
		for _, e := range edits {
			if e.NV <= 0 {
				res.Skipped++
				continue
			}
			changes := SanitizeChanges(e.Changes)
			if len(changes) == 0 {
				res.Skipped++
				continue
			}

			var cur db.OverlayRow
			err := tx.Where("nv = ?", e.NV).Take(&cur).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				cur = db.OverlayRow{NV: e.NV}
			case err != nil:
				return fmt.Errorf("preproduccion_valores nv=%d: %w", e.NV, err)
			}

			data := Row{}
			for k, v := range cur.Data {
				data[k] = v
			}
			for k, v := range changes {
				data[k] = v
			}
			if err := upsertOverlay(tx, e.NV, data); err != nil {
				return err
			}
			res.Applied++
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}
	return res, nil
}
