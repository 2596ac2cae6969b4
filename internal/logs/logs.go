// Package logs monta o zerolog.Logger dos binários (console, arquivo rotacionado ou ambos).
package logs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controla saída e nível.
//
//	Type:  "stdout" | "file" | "both" | "off"
//	Level: "trace" | "debug" | "info" | "warn" | "error" | "off"
//	Path:  arquivo de log (obrigatório para file/both)
type Config struct {
	Type  string
	Level string
	Path  string

	// rotação (lumberjack): MB, quantidade e dias
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool

	Color bool
}

// ParseLevel aceita nomes e os números usados em syslog (0..7).
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "off", "disabled":
		return zerolog.Disabled
	case "1", "panic":
		return zerolog.PanicLevel
	case "2", "fatal":
		return zerolog.FatalLevel
	case "3", "error":
		return zerolog.ErrorLevel
	case "4", "warn", "warning":
		return zerolog.WarnLevel
	case "6", "debug":
		return zerolog.DebugLevel
	case "7", "trace":
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}

// New devolve o logger configurado. Sem nenhuma saída válida devolve zerolog.Nop().
func New(cfg Config) zerolog.Logger {
	lvl := ParseLevel(cfg.Level)
	if strings.EqualFold(cfg.Type, "off") || lvl == zerolog.Disabled {
		return zerolog.Nop()
	}

	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		typ = "stdout"
	}

	var writers []io.Writer
	if typ == "stdout" || typ == "both" {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    !cfg.Color,
		})
	}
	if (typ == "file" || typ == "both") && cfg.Path != "" && cfg.Path != "/dev/null" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    defaultInt(cfg.MaxSize, 10),
			MaxBackups: defaultInt(cfg.MaxBackups, 5),
			MaxAge:     defaultInt(cfg.MaxAge, 7),
			Compress:   cfg.Compress,
			LocalTime:  true,
		})
	}
	if len(writers) == 0 {
		return zerolog.Nop()
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
