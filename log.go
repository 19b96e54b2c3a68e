/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/pretty"
)

const logDate string = `2006-01-02T15:04:05.000-07:00`

func init() {
	zerolog.TimeFieldFormat = logDate
}

// newLogger builds the process logger. Verbose output adds debug events.
func newLogger(cfg *Config, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	if cfg.logFormat == "pretty" {
		w = prettyWriter{w}
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Str("version", releaseVersion).
		Logger().
		Level(level)
}

type prettyWriter struct {
	out io.Writer
}

func (p prettyWriter) Write(line []byte) (int, error) {
	if n, err := p.out.Write(pretty.Color(pretty.Pretty(line), nil)); err != nil {
		return n, err
	}
	return len(line), nil
}

// served logs one static response.
func served(cfg *Config, what string, written int, ip string, start time.Time) {
	cfg.log.Debug().
		Str("page", what).
		Int("bytes", written).
		Str("ip", ip).
		Dur("took", time.Since(start).Round(time.Microsecond)).
		Msg("Served")
}
