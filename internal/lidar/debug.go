package lidar

import (
	"io"
	"log"
	"sync"
)

// logPrefix tags every line written by the matcher packages.
const logPrefix = "[scanmatch] "

// stream names one of the three log destinations.
type stream int

const (
	streamOps stream = iota
	streamDiag
	streamTrace
	numStreams
)

// LogWriters selects where each stream goes. A nil writer silences it.
//
//   - Ops: keyframes that fail preprocessing, pairs that fall back to the
//     initial guess, run lifecycle.
//   - Diag: per-keyframe point counts and per-pair fitness.
//   - Trace: per-iteration ICP telemetry. Expensive; keep off for batch runs.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	loggersMu sync.RWMutex
	loggers   [numStreams]*log.Logger
)

// SetLogWriters swaps all three streams atomically. Call it with a zero
// LogWriters to silence logging, as tests do in cleanup.
func SetLogWriters(w LogWriters) {
	next := [numStreams]*log.Logger{
		streamOps:   loggerFor(w.Ops),
		streamDiag:  loggerFor(w.Diag),
		streamTrace: loggerFor(w.Trace),
	}
	loggersMu.Lock()
	loggers = next
	loggersMu.Unlock()
}

func loggerFor(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, logPrefix, log.LstdFlags|log.Lmicroseconds)
}

func current(s stream) *log.Logger {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	return loggers[s]
}

func (s stream) printf(format string, args ...any) {
	if l := current(s); l != nil {
		l.Printf(format, args...)
	}
}

// Opsf writes to the ops stream.
func Opsf(format string, args ...any) { streamOps.printf(format, args...) }

// Diagf writes to the diag stream.
func Diagf(format string, args ...any) { streamDiag.printf(format, args...) }

// Tracef writes to the trace stream.
func Tracef(format string, args ...any) { streamTrace.printf(format, args...) }

// TraceEnabled reports whether Tracef output goes anywhere, so ICP loops
// can skip building per-iteration arguments.
func TraceEnabled() bool { return current(streamTrace) != nil }
