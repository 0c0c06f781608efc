// Package logger wraps zap with the component-tagging convention the rest
// of this codebase uses in place of the bracketed log.Printf prefixes an
// earlier iteration of this service used ("[SKILLS] ...", "[AGENT] ...").
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu   sync.Mutex
	base *zap.Logger
)

// Init sets the process-wide base logger. Call once from main.
func Init(debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	var z *zap.Logger
	var err error
	if debug {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	base = z
	return nil
}

// New returns a sugared logger tagged with component, e.g. logger.New("ingestion").
func New(component string) *zap.SugaredLogger {
	mu.Lock()
	b := base
	mu.Unlock()
	if b == nil {
		b, _ = zap.NewProduction()
	}
	return b.With(zap.String("component", component)).Sugar()
}

// Sync flushes any buffered log entries. Call on shutdown.
func Sync() {
	mu.Lock()
	b := base
	mu.Unlock()
	if b != nil {
		_ = b.Sync()
	}
}
