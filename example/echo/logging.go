package main

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/Zereker/framesock"
)

// zlog adapts a zerolog.Logger to framesock.Logger.
type zlog struct {
	l zerolog.Logger
}

var _ framesock.Logger = zlog{}

func newLogger(w io.Writer, level zerolog.Level) zlog {
	l := zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(level).
		With().Timestamp().Logger()
	return zlog{l: l}
}

func (z zlog) Debug(msg string, args ...any) { z.l.Debug().Fields(args).Msg(msg) }
func (z zlog) Info(msg string, args ...any)  { z.l.Info().Fields(args).Msg(msg) }
func (z zlog) Warn(msg string, args ...any)  { z.l.Warn().Fields(args).Msg(msg) }
func (z zlog) Error(msg string, args ...any) { z.l.Error().Fields(args).Msg(msg) }
