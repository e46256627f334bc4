// internal/db/models.go
package db

import (
	"time"

	"gorm.io/datatypes"
)

// preproduccion_sql – surowy snapshot wiersza z ERP (1 wiersz na NV, nadpisywany przy każdym odczycie)
type RawSnapshot struct {
	NV        int64             `gorm:"primaryKey;autoIncrement:false;column:nv"`
	ERPID     *int64            `gorm:"index;column:erp_id"` // Pre_Produccion.ID
	Data      datatypes.JSONMap `gorm:"column:data"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

func (RawSnapshot) TableName() string { return "preproduccion_sql" }

// preproduccion_valores – nakładka: ręczne poprawki + wyniki formuł (tylko delta)
type OverlayRow struct {
	NV        int64             `gorm:"primaryKey;autoIncrement:false;column:nv"`
	Data      datatypes.JSONMap `gorm:"column:data"`
	UpdatedAt time.Time         `gorm:"column:updated_at"`
}

func (OverlayRow) TableName() string { return "preproduccion_valores" }

// preproduccion_formulas – formuła per kolumna, wspólna dla wszystkich NV
type Formula struct {
	ColumnName string    `gorm:"primaryKey;column:column_name;size:200" json:"column_name"`
	Expression string    `gorm:"type:text;column:expression" json:"expression"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Formula) TableName() string { return "preproduccion_formulas" }

// import_files – zarejestrowane arkusze (dedup po SHA256)
type ImportFile struct {
	ImportID    uint      `gorm:"primaryKey;column:import_id"`
	Filename    string    `gorm:"index;size:255"`
	SHA256      string    `gorm:"uniqueIndex;size:64"`
	SizeBytes   int64
	Status      int       `gorm:"index"` // 0=pending, 1=done, 2=error
	Applied     int
	Skipped     int
	NotFound    int
	LastError   string    `gorm:"type:text"`
	ReceivedAt  time.Time `gorm:"autoCreateTime"`
	ProcessedAt *time.Time
}

const (
	ImportPending = 0
	ImportDone    = 1
	ImportError   = 2
)

// KV – drobny stan synchronizacji (np. erp.last_sync)
type KV struct {
	K string `gorm:"primaryKey;size:191"`
	V string `gorm:"type:text"`
}
