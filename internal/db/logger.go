package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

// zerologWriter – adapter Printf dla loggera gorma
type zerologWriter struct {
	log zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...any) {
	w.log.Info().Str("component", "gorm").Msg(fmt.Sprintf(format, args...))
}

// NewGormLogger kieruje logi SQL do zerologa. Bez debug tylko błędy i wolne zapytania.
func NewGormLogger(log zerolog.Logger, debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(zerologWriter{log: log}, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
