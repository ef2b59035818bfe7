// Package rlog adapts the teacher's ad hoc leveled-prefix logger
// (jcorbin-gothird's internal/logio, wired through core.go/internals.go's
// `logging` struct and `logf` method) into a github.com/go-logr/logr
// facade, so every subsystem logs through the same structured interface
// while the CLI (cmd/wam) keeps the teacher's exact terminal presentation:
// an aligned mark column, written through a logio.Logger's Leveledf.
package rlog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/gowam/wam/internal/logio"
)

// Sink adapts a teacher-style leveled function (mess string, args
// ...interface{}) into an logr.LogSink via funcr, and additionally tracks
// the mark column's width (markWidth), the part of the teacher's
// `logging.logf` alignment state it keeps; func/code columns are not
// aligned.
type Sink struct {
	mu sync.Mutex

	markWidth int
	leveledf  func(mess string, args ...interface{})
}

// NewSink builds a Sink writing through a teacher-style leveled function,
// e.g. (&logio.Logger{}).Leveledf("TRACE").
func NewSink(leveledf func(mess string, args ...interface{})) *Sink {
	return &Sink{leveledf: leveledf}
}

// Logf reproduces the teacher's `logging.logf` mark-padding behavior: a
// fixed-width mark column, left-padded by repeating its own leading rune.
func (s *Sink) Logf(mark, mess string, args ...interface{}) {
	if s == nil || s.leveledf == nil {
		return
	}
	s.mu.Lock()
	if n := s.markWidth - len(mark); n > 0 {
		for _, r := range mark {
			mark = strings.Repeat(string(r), n) + mark
			break
		}
	} else if n < 0 {
		s.markWidth = len(mark)
	}
	s.mu.Unlock()

	if len(args) > 0 {
		mess = fmt.Sprintf(mess, args...)
	}
	s.leveledf("%v %v", mark, mess)
}

// Logger builds an logr.Logger over lines written through a teacher-style
// logio.Logger, keeping cmd/wam's terminal output identical in spirit to
// jcorbin-gothird/main.go's `log.Leveledf("TRACE")` usage while giving
// every internal package (compiler, vm, gc, shifter, engine) a structured
// V()/Info()/Error() interface to log through.
func Logger(log *logio.Logger, level string) logr.Logger {
	sink := NewSink(log.Leveledf(level))
	fn := funcr.NewJSON(func(obj string) { sink.Logf("#", "%s", obj) }, funcr.Options{})
	return logr.New(fn)
}

// Discard is a logr.Logger that drops everything, the counterpart of the
// teacher's `logfn == nil` check in `logging.logf`.
func Discard() logr.Logger { return logr.Discard() }
