// Package api – HTTP (gin) nad warstwą preprod: odczyt z ERP, wiersze definitywne,
// formuły i ręczne poprawki.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bartek5186/dflexsync/internal/integrations"
	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ERPReader – odczyt Pre_Produccion (erp.Reader)
type ERPReader interface {
	PreProduccion(ctx context.Context, nv *int64) ([]preprod.Row, error)
}

type Options struct {
	Store       *preprod.GormStore
	Queue       integrations.Enqueuer
	ERP         ERPReader // nil = /api/pre-produccion zwraca 503
	DateFields  []string
	CORSOrigins []string
}

type Server struct {
	log   zerolog.Logger
	store *preprod.GormStore
	query *preprod.Query
	queue integrations.Enqueuer
	erp   ERPReader

	engine *gin.Engine
}

func New(log zerolog.Logger, opts Options) *Server {
	s := &Server{
		log:   log,
		store: opts.Store,
		query: preprod.NewQuery(opts.Store, opts.DateFields),
		queue: opts.Queue,
		erp:   opts.ERP,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/api/health", s.health)
	r.GET("/api/pre-produccion", s.preProduccion)
	r.GET("/api/pre-produccion-valores", s.preProduccionValores)
	r.POST("/api/pre-produccion-valores/bulk-update", s.bulkUpdate)
	r.GET("/api/formulas", s.listFormulas)
	r.POST("/api/formulas", s.upsertFormula)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run blokuje do ctx.Done, potem łagodnie zamyka serwer
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP: nasłuch")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("HTTP: zamknięty")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AddAllowHeaders("Authorization")
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := s.log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP")
	}
}
