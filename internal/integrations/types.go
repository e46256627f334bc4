// internal/integrations/types.go
package integrations

import (
	"context"
	"encoding/json"

	"github.com/bartek5186/dflexsync/internal/preprod"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Integration interface {
	Name() string
	Start(ctx context.Context) error // blokuje do ctx.Done (long-running) lub odpala własną pętlę
	Stop()                           // idempotent
}

// Enqueuer – kolejka synchronizacji (syncer.Queue)
type Enqueuer interface {
	Enqueue(rows []preprod.Row) int
}

// Deps – wspólne zależności przekazywane każdej integracji przy budowie
type Deps struct {
	DB    *gorm.DB
	Store *preprod.GormStore
	Queue Enqueuer
}

type Factory func(log zerolog.Logger, raw json.RawMessage, deps Deps) (Integration, error)
