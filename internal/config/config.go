// internal/config/config.go
package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/integrations/erp"
	"github.com/bartek5186/dflexsync/internal/integrations/importer"
	"github.com/joho/godotenv"
)

// Główny config aplikacji
type Config struct {
	AutoStart           bool                       `json:"auto_start"`
	SyncIntervalSeconds int                        `json:"sync_interval_seconds"` // heartbeat syncera
	LogLevel            string                     `json:"log_level"`
	DB                  db.Config                  `json:"db"`
	HTTP                HTTPConfig                 `json:"http"`
	Query               QueryConfig                `json:"query"`
	Integrations        map[string]json.RawMessage `json:"integrations"` // nazwa -> surowy JSON integracji
}

type HTTPConfig struct {
	Addr        string   `json:"addr"`         // ":4000"
	CORSOrigins []string `json:"cors_origins"` // puste = wszystkie
}

type QueryConfig struct {
	DateFields []string `json:"date_fields"` // pola daty produkcji dla ?desde/&hasta
}

func defaults() *Config {
	rawERP, _ := json.Marshal(erp.Config{
		Table:             erp.DefaultTable,
		Limit:             erp.DefaultLimit,
		TerminadosFile:    "./nv_terminados.txt",
		TerminadosCharset: "utf-8",
		PollSec:           0,
	})
	rawImp, _ := json.Marshal(importer.Config{
		WatchDir: "./excel_in",
		PollSec:  10,
		Sheet:    importer.DefaultSheet(),
	})
	return &Config{
		AutoStart:           true,
		SyncIntervalSeconds: 30,
		LogLevel:            "info",
		DB:                  db.Config{Driver: "postgres"},
		HTTP:                HTTPConfig{Addr: ":4000"},
		Query:               QueryConfig{DateFields: []string{"inicio_prod_imput", "fecha_envio_produccion"}},
		Integrations: map[string]json.RawMessage{
			"erp":      rawERP,
			"importer": rawImp,
		},
	}
}

func LoadOrCreate(path string) (*Config, bool, error) {
	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaults()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("błąd zapisu domyślnego configa: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("błąd otwierania configa: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
	}
	if cfg.Integrations == nil {
		cfg.Integrations = map[string]json.RawMessage{}
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":4000"
	}
	return &cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// ApplyEnv wczytuje .env (jeśli są) i nadpisuje config zmiennymi środowiskowymi.
// Zmienne już ustawione w środowisku wygrywają z .env.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("błąd wczytania .env: %w", err)
	}
	if v := strings.TrimSpace(os.Getenv("SUPABASE_DB_URL")); v != "" {
		c.DB.Driver = "postgres"
		c.DB.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.HTTP.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Helper do odczytu konkretnej integracji do struktury docelowej
func (c *Config) UnmarshalIntegration(name string, v any) error {
	raw, ok := c.Integrations[name]
	if !ok {
		return fmt.Errorf("brak integracji %q w configu", name)
	}
	return json.Unmarshal(raw, v)
}

// ERP – config integracji erp z nałożonymi zmiennymi SQL_*
func (c *Config) ERP() erp.Config {
	var ec erp.Config
	_ = c.UnmarshalIntegration("erp", &ec)
	ec.ApplyEnv()
	return ec
}

func (c *Config) Importer() importer.Config {
	var ic importer.Config
	_ = c.UnmarshalIntegration("importer", &ic)
	return ic
}
