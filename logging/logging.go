// Package logging builds zerolog loggers from configuration and keeps them
// live across configuration reloads.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Swind/go-message-queue/config"
	"github.com/Swind/go-message-queue/core"
)

const consoleTimeFormat = "15:04:05.000"

// New builds a zerolog logger writing to out (stderr when nil) in the
// configured format and level.
func New(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	w := out
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	}
	return zerolog.New(w).
		Level(core.ParseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
}

// Service is a core.Logger whose output settings can be replaced at runtime.
// Components keep the Service and pick up every Apply.
type Service struct {
	mu  sync.RWMutex
	out io.Writer
	cfg config.LogConfig
	zl  zerolog.Logger
}

var _ core.Logger = (*Service)(nil)

// NewService creates a service writing to out.
func NewService(cfg config.LogConfig, out io.Writer) *Service {
	s := &Service{out: out}
	s.Apply(cfg)
	return s
}

// Apply rebuilds the logger from cfg.
func (s *Service) Apply(cfg config.LogConfig) {
	zl := New(cfg, s.out)
	s.mu.Lock()
	s.cfg = cfg
	s.zl = zl
	s.mu.Unlock()
}

// Config returns the settings last applied.
func (s *Service) Config() config.LogConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Level returns the active level.
func (s *Service) Level() zerolog.Level {
	return s.current().GetLevel()
}

func (s *Service) current() zerolog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zl
}

func (s *Service) Debug(msg string, fields ...core.Field) {
	core.NewZerologLogger(s.current()).Debug(msg, fields...)
}

func (s *Service) Info(msg string, fields ...core.Field) {
	core.NewZerologLogger(s.current()).Info(msg, fields...)
}

func (s *Service) Warn(msg string, fields ...core.Field) {
	core.NewZerologLogger(s.current()).Warn(msg, fields...)
}

func (s *Service) Error(msg string, fields ...core.Field) {
	core.NewZerologLogger(s.current()).Error(msg, fields...)
}
