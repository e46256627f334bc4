package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bartek5186/dflexsync/internal/formula"
	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	respondOK(c, gin.H{"status": "ok"})
}

// nvParam – pusty = brak filtra, nie-liczba = 400
func nvParam(c *gin.Context) (*int64, bool) {
	raw := strings.TrimSpace(c.Query("nv"))
	if raw == "" {
		return nil, true
	}
	nv, ok := preprod.ParseNV(raw)
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid_nv", fmt.Errorf("nv %q nie jest poprawnym numerem", raw))
		return nil, false
	}
	return &nv, true
}

// GET /api/pre-produccion – świeży odczyt z ERP; synchronizacja idzie w tle przez kolejkę
func (s *Server) preProduccion(c *gin.Context) {
	nv, ok := nvParam(c)
	if !ok {
		return
	}
	if s.erp == nil {
		respondError(c, http.StatusServiceUnavailable, "erp_not_configured", errors.New("brak połączenia z ERP"))
		return
	}

	rows, err := s.erp.PreProduccion(c.Request.Context(), nv)
	if err != nil {
		s.log.Error().Err(err).Msg("odczyt Pre_Produccion nieudany")
		respondError(c, http.StatusInternalServerError, "erp_read", err)
		return
	}

	queued := 0
	if s.queue != nil && len(rows) > 0 {
		queued = s.queue.Enqueue(rows)
	}
	respondOK(c, gin.H{"count": len(rows), "rows": rows, "queued": queued})
}

// GET /api/pre-produccion-valores?nv=&partida=&desde=&hasta=
func (s *Server) preProduccionValores(c *gin.Context) {
	nv, ok := nvParam(c)
	if !ok {
		return
	}
	f := preprod.Filter{
		NV:      nv,
		Partida: c.Query("partida"),
	}
	for _, p := range []struct {
		name string
		dst  *string
	}{{"desde", &f.From}, {"hasta", &f.To}} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		if *p.dst = preprod.NormalizeDate(raw); *p.dst == "" {
			respondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("%s: nieczytelna data %q", p.name, raw))
			return
		}
	}

	rows, err := s.query.Rows(c.Request.Context(), f)
	if err != nil {
		s.log.Error().Err(err).Msg("odczyt wierszy definitywnych nieudany")
		respondError(c, http.StatusInternalServerError, "query", err)
		return
	}
	respondOK(c, gin.H{"count": len(rows), "rows": rows})
}

func (s *Server) listFormulas(c *gin.Context) {
	recs, err := s.store.ListFormulas(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "formulas", err)
		return
	}
	respondOK(c, gin.H{"formulas": recs})
}

type formulaRequest struct {
	ColumnName string `json:"column_name"`
	Expression string `json:"expression"`
}

// POST /api/formulas – formuła z błędem składni nie trafia do bazy
func (s *Server) upsertFormula(c *gin.Context) {
	var req formulaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if strings.TrimSpace(req.ColumnName) == "" {
		respondError(c, http.StatusBadRequest, "missing_column", preprod.ErrNoColumn)
		return
	}
	if strings.TrimSpace(req.Expression) != "" {
		if _, err := formula.Compile(req.Expression); err != nil {
			respondError(c, http.StatusBadRequest, "formula_syntax", err)
			return
		}
	}

	rec, err := s.store.UpsertFormula(c.Request.Context(), req.ColumnName, req.Expression)
	if err != nil {
		if errors.Is(err, preprod.ErrNoColumn) {
			respondError(c, http.StatusBadRequest, "missing_column", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "formulas", err)
		return
	}
	respondOK(c, gin.H{"formula": rec})
}

type bulkItem struct {
	NV      any            `json:"nv"` // liczba albo tekst
	Changes map[string]any `json:"changes"`
}

type bulkRequest struct {
	Updates []bulkItem `json:"updates"`
}

type bulkFailure struct {
	ErrorEnvelope
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// POST /api/pre-produccion-valores/bulk-update – wszystko albo nic
func (s *Server) bulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(req.Updates) == 0 {
		respondError(c, http.StatusBadRequest, "missing_updates", errors.New("brak updates[] w body"))
		return
	}

	edits := make([]preprod.Edit, 0, len(req.Updates))
	for _, u := range req.Updates {
		nv, _ := preprod.ParseNV(u.NV) // 0 = pominięty w BulkEdit
		edits = append(edits, preprod.Edit{NV: nv, Changes: u.Changes})
	}

	res, err := s.store.BulkEdit(c.Request.Context(), edits)
	if err != nil {
		s.log.Error().Err(err).Int("updates", len(edits)).Msg("bulk-update wycofany")
		c.AbortWithStatusJSON(http.StatusInternalServerError, bulkFailure{
			ErrorEnvelope: ErrorEnvelope{Error: APIError{Message: err.Error(), Code: "bulk_update"}},
		})
		return
	}
	respondOK(c, gin.H{"success": true, "applied": res.Applied, "skipped": res.Skipped})
}
