// Package rtrace records per-query and per-engine-message execution
// timelines using golang.org/x/net/trace, exercising a dependency the
// teacher (jcorbin-gothird) already pulls in indirectly (via
// golang.org/x/net) but never uses. It is the non-UI half of what a
// debugger needs: an inspectable timeline of suspension points
// (SPEC_FULL.md §5), without building the debugger's user interface
// itself (explicitly out of scope, spec.md §1).
package rtrace

import (
	"fmt"

	"golang.org/x/net/trace"
)

// QueryTrace records the lifecycle of one open_query/next_solution/
// close_query handle (SPEC_FULL.md §6).
type QueryTrace struct {
	tr     trace.Trace
	family string
}

// NewQuery starts a trace event log for a query over goal, scoped under
// family (conventionally the engine id).
func NewQuery(family, goal string) *QueryTrace {
	return &QueryTrace{tr: trace.New("wam.query", family), family: family}
}

// Event appends one suspension-point event (SPEC_FULL.md §5): a
// CALL/DEPART/REDO/EXIT/FAIL/THROW port, or a foreign-call entry/exit.
func (q *QueryTrace) Event(port string, args ...interface{}) {
	if q == nil || q.tr == nil {
		return
	}
	q.tr.LazyPrintf("%s %s", port, fmt.Sprint(args...))
}

// Errorf records an error event and marks the trace as errored, so it
// surfaces in the /debug/requests UI's error bucket.
func (q *QueryTrace) Errorf(format string, args ...interface{}) {
	if q == nil || q.tr == nil {
		return
	}
	q.tr.LazyPrintf(format, args...)
	q.tr.SetError()
}

// Finish closes the trace. Callers invoke this from close_query.
func (q *QueryTrace) Finish() {
	if q == nil || q.tr == nil {
		return
	}
	q.tr.Finish()
}

// MessageTrace records one engine-to-engine message-queue send/receive
// pair (SPEC_FULL.md §4.7), under the "wam.message" family.
func MessageTrace(from, to string) trace.Trace {
	return trace.New("wam.message", fmt.Sprintf("%s->%s", from, to))
}
