package db

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config – baza aplikacji (Supabase/Postgres w produkcji)
type Config struct {
	Driver string `json:"driver"` // postgres | mysql | sqlite
	DSN    string `json:"dsn"`    // dla sqlite: ścieżka pliku (pusta = <appDir>/dflexsync.db)
	Debug  bool   `json:"debug"`  // verbose SQL w logu
}

type Handle struct {
	DB     *gorm.DB
	Driver string
	Path   string
}

// Open otwiera bazę wg configu. appDir służy tylko jako domyślne miejsce pliku sqlite.
func Open(cfg Config, appDir string, log zerolog.Logger) (*Handle, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "postgres"
	}

	var dial gorm.Dialector
	path := ""
	switch driver {
	case "postgres", "postgresql", "supabase":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("db: brak DSN dla %s (ustaw SUPABASE_DB_URL)", driver)
		}
		driver = "postgres"
		dial = postgres.Open(cfg.DSN)
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("db: brak DSN dla mysql")
		}
		dial = mysql.Open(cfg.DSN)
	case "sqlite":
		path = cfg.DSN
		if path == "" {
			path = filepath.Join(appDir, "dflexsync.db")
		}
		dial = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("db: nieznany driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{
		Logger: NewGormLogger(log, cfg.Debug),
	})
	if err != nil {
		return nil, fmt.Errorf("db open (%s): %w", driver, err)
	}
	return &Handle{DB: gdb, Driver: driver, Path: path}, nil
}

func (h *Handle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
