package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	conf "github.com/bartek5186/dflexsync/internal/config"
	"github.com/bartek5186/dflexsync/internal/preprod"
	syncer "github.com/bartek5186/dflexsync/internal/syncer"
	"github.com/spf13/cobra"
)

const cliHelp = "start | stop | reload | status | queue | sync [nv] | paths | quit"

func newCLICommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cli",
		Short: "Interaktywna konsola (syncer bez API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCLI(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) runCLI(in io.Reader, out io.Writer) error {
	log := a.log
	log.Info().Msg("Aplikacja (CLI) uruchomiona")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := syncer.New(ctx, log, a.cfg, a.dbh.DB)

	// AutoStart tak jak w serve
	if a.cfg.AutoStart {
		if err := s.Start(ctx); err != nil {
			log.Error().Msgf("AutoStart nieudany: %v", err)
		} else {
			log.Info().Msgf("DFlex Sync %s — działa", ver)
		}
	}

	fmt.Fprintln(out, "DFlex Sync CLI", ver)
	fmt.Fprintln(out, "Komendy:", cliHelp)
	reader := bufio.NewReader(in)

	for {
		fmt.Fprint(out, "> ")
		line, err := reader.ReadString('\n')
		fields := strings.Fields(strings.ToLower(line))
		cmd := ""
		if len(fields) > 0 {
			cmd = fields[0]
		}
		if err != nil && cmd == "" {
			// EOF na stdin
			cmd = "quit"
		}

		switch cmd {
		case "start":
			if err := s.Start(ctx); err != nil {
				log.Error().Msgf("Start error: %v", err)
				fmt.Fprintln(out, "Błąd startu:", err)
				continue
			}
			fmt.Fprintln(out, "Start OK")
		case "stop":
			s.Stop()
			fmt.Fprintln(out, "Zatrzymano")
		case "reload":
			newCfg, _, err := conf.LoadOrCreate(a.cfgPath)
			if err == nil {
				err = newCfg.ApplyEnv(envFiles(a.envFile)...)
			}
			if err != nil {
				log.Error().Msgf("Błąd reloadu: %v", err)
				fmt.Fprintln(out, "Błąd reloadu:", err)
				continue
			}
			a.cfg = newCfg
			s.UpdateConfig(newCfg)
			log.Info().Msg("Konfiguracja przeładowana")
			fmt.Fprintln(out, "Konfiguracja przeładowana")
		case "status":
			if s.IsRunning() {
				fmt.Fprintln(out, "Status: DZIAŁA")
			} else {
				fmt.Fprintln(out, "Status: ZATRZYMANY")
			}
		case "queue":
			fmt.Fprintf(out, "Kolejka: %d oczekujących, worker aktywny: %v\n", s.Queue().Pending(), s.Queue().Running())
		case "sync":
			a.cliSync(ctx, out, s, fields[1:])
		case "paths":
			fmt.Fprintln(out, "Logi:", filepath.Join(a.appDir, "app.log"))
			fmt.Fprintln(out, "Config:", a.cfgPath)
			if a.dbh.Path != "" {
				fmt.Fprintln(out, "DB:", a.dbh.Path)
			}
		case "quit", "exit":
			s.Stop()
			waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = s.Queue().Wait(waitCtx)
			waitCancel()
			cancel()
			return nil
		case "":
			// enter – ignoruj
		default:
			fmt.Fprintln(out, "Nieznana komenda. Użyj:", cliHelp)
		}
	}
}

// cliSync – odczyt z ERP i wrzucenie do kolejki syncera
func (a *app) cliSync(ctx context.Context, out io.Writer, s *syncer.Syncer, args []string) {
	r := a.erpReader()
	if r == nil {
		fmt.Fprintln(out, "ERP nie skonfigurowany (SQL_SERVER)")
		return
	}
	defer r.Close()

	var nv *int64
	if len(args) > 0 {
		n, ok := preprod.ParseNV(args[0])
		if !ok {
			fmt.Fprintf(out, "Niepoprawne NV: %q\n", args[0])
			return
		}
		nv = &n
	}

	rows, err := r.PreProduccion(ctx, nv)
	if err != nil {
		a.log.Error().Err(err).Msg("odczyt Pre_Produccion nieudany")
		fmt.Fprintln(out, "Błąd odczytu:", err)
		return
	}
	fmt.Fprintf(out, "Odczytano %d, w kolejce %d\n", len(rows), s.Queue().Enqueue(rows))
}

func envFiles(f string) []string {
	if f == "" {
		return nil
	}
	return []string{f}
}
