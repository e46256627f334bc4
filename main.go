package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bartek5186/dflexsync/internal/api"
	conf "github.com/bartek5186/dflexsync/internal/config"
	"github.com/bartek5186/dflexsync/internal/db"
	"github.com/bartek5186/dflexsync/internal/formula"
	"github.com/bartek5186/dflexsync/internal/integrations/erp"
	"github.com/bartek5186/dflexsync/internal/integrations/importer"
	logs "github.com/bartek5186/dflexsync/internal/logs"
	"github.com/bartek5186/dflexsync/internal/preprod"
	syncer "github.com/bartek5186/dflexsync/internal/syncer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// wersję możesz nadpisać przez: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

// app – wspólny stan komend (config, log, baza)
type app struct {
	appDir  string
	cfgPath string
	envFile string
	console bool

	cfg *conf.Config
	log zerolog.Logger
	dbh *db.Handle
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "dflexsync",
		Short:         "DFlex Sync – Pre_Produccion z ERP, formuły i ręczne poprawki",
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.appDir, "app-dir", "", "katalog danych (domyślnie <UserConfigDir>/dflexsync)")
	cmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "ścieżka config.json (domyślnie <app-dir>/config.json)")
	cmd.PersistentFlags().StringVar(&a.envFile, "env", "", "plik .env (domyślnie ./.env)")
	cmd.PersistentFlags().BoolVar(&a.console, "console", true, "logi także na konsolę")

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newSyncCommand(a))
	cmd.AddCommand(newImportCommand(a))
	cmd.AddCommand(newFormulasCommand(a))
	cmd.AddCommand(newCLICommand(a))
	return cmd
}

func (a *app) init() error {
	if a.appDir == "" {
		a.appDir = mustAppDataDir("dflexsync")
	}
	if a.cfgPath == "" {
		a.cfgPath = filepath.Join(a.appDir, "config.json")
	}

	cfg, firstRun, err := conf.LoadOrCreate(a.cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(envFiles(a.envFile)...); err != nil {
		return err
	}
	a.cfg = cfg

	a.log = logs.New(filepath.Join(a.appDir, "app.log"), a.console, cfg.LogLevel)
	if firstRun {
		a.log.Info().Msgf("Utworzono domyślną konfigurację: %s", a.cfgPath)
	}

	dbh, err := db.Open(cfg.DB, a.appDir, a.log)
	if err != nil {
		return err
	}
	if err := dbh.Migrate(); err != nil {
		_ = dbh.Close()
		return err
	}
	a.dbh = dbh
	a.log.Info().Str("driver", dbh.Driver).Str("path", dbh.Path).Msg("DB ready")
	return nil
}

func (a *app) close() {
	if a.dbh != nil {
		_ = a.dbh.Close()
		a.dbh = nil
	}
}

// erpReader – nil, gdy SQL Server nie jest skonfigurowany
func (a *app) erpReader() *erp.Reader {
	ec := a.cfg.ERP()
	if strings.TrimSpace(ec.Server) == "" {
		return nil
	}
	return erp.NewReader(a.log.With().Str("component", "erp").Logger(), ec)
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "API HTTP + syncer (integracje erp/importer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			// kontekst sterujący życiem procesu (CTRL+C / SIGTERM)
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s := syncer.New(ctx, a.log, a.cfg, a.dbh.DB)
			if a.cfg.AutoStart {
				if err := s.Start(ctx); err != nil {
					a.log.Error().Msgf("AutoStart nieudany: %v", err)
				} else {
					a.log.Info().Msgf("DFlex Sync %s — działa", ver)
				}
			}

			opts := api.Options{
				Store:       s.Store(),
				Queue:       s.Queue(),
				DateFields:  a.cfg.Query.DateFields,
				CORSOrigins: a.cfg.HTTP.CORSOrigins,
			}
			if r := a.erpReader(); r != nil {
				defer r.Close()
				opts.ERP = r
			} else {
				a.log.Warn().Msg("SQL_SERVER nie ustawiony – /api/pre-produccion niedostępne")
			}

			err := api.New(a.log.With().Str("component", "api").Logger(), opts).Run(ctx, a.cfg.HTTP.Addr)
			s.Stop()

			// dokończ to, co już jest w kolejce
			waitCtx, waitCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer waitCancel()
			if werr := s.Queue().Wait(waitCtx); werr != nil {
				a.log.Warn().Int("pending", s.Queue().Pending()).Msg("kolejka nie opróżniona przed wyjściem")
			}
			return err
		},
	}
}

func newSyncCommand(a *app) *cobra.Command {
	var nv int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Jednorazowy odczyt Pre_Produccion i synchronizacja (bez kolejki)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := a.erpReader()
			if r == nil {
				return erp.ErrNotConfigured
			}
			defer r.Close()

			var filter *int64
			if nv > 0 {
				filter = &nv
			}
			rows, err := r.PreProduccion(cmd.Context(), filter)
			if err != nil {
				return err
			}
			rec := preprod.NewReconciler(preprod.NewGormStore(a.dbh.DB), a.log)
			st, err := rec.SyncBatch(cmd.Context(), rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "odczytano %d, zsynchronizowano %d, pominięto %d, błędy %d\n",
				len(rows), st.Synced, st.Skipped, st.Failed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&nv, "nv", 0, "tylko jedno NV")
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import-excel <plik.xlsx>",
		Short: "Import arkusza (NV -> pole) do preproduccion_valores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp := importer.New(a.log, a.cfg.Importer(), preprod.NewGormStore(a.dbh.DB))
			res, err := imp.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newFormulasCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formulas",
		Short: "Formuły kolumn",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Lista formuł",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := preprod.NewGormStore(a.dbh.DB).ListFormulas(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range recs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", r.ColumnName, r.Expression)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <kolumna> [wyrażenie...]",
		Short: "Ustaw formułę (puste wyrażenie = bez formuły)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.Join(args[1:], " ")
			if strings.TrimSpace(expr) != "" {
				if _, err := formula.Compile(expr); err != nil {
					return err
				}
			}
			rec, err := preprod.NewGormStore(a.dbh.DB).UpsertFormula(cmd.Context(), args[0], expr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "zapisano %s = %s\n", rec.ColumnName, rec.Expression)
			return nil
		},
	})
	return cmd
}

func mustAppDataDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(base, name)
	_ = os.MkdirAll(p, 0o755)
	return p
}
