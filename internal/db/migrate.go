package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate tworzy/aktualizuje schemat bazy aplikacji.
func (h *Handle) Migrate() error {
	return Migrate(h.DB)
}

// Migrate – wersja na gołym *gorm.DB (testy, narzędzia).
// Tabele preproduccion_* mają PK nv, więc ON CONFLICT (nv) działa na każdym dialekcie.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&RawSnapshot{},
		&OverlayRow{},
		&Formula{},
		&ImportFile{},
		&KV{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}
	return nil
}
