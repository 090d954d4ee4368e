package provision

// Sink receives step events as the workflow makes decisions. Sinks are
// observational only and must never influence the workflow: no errors, no
// panics escaping, no blocking.
type Sink interface {
	Record(event StepEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(StepEvent) {}

// SafeRecord delivers an event to a possibly-nil, possibly-buggy sink. A
// panicking sink must not take the workflow down with it.
func SafeRecord(s Sink, event StepEvent) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// TraceRecorder accumulates events in memory for later canonicalization.
// Steps run sequentially on one goroutine, so this is a plain append buffer
// with no locking.
type TraceRecorder struct {
	events []StepEvent
}

func NewTraceRecorder() *TraceRecorder { return &TraceRecorder{} }

func (r *TraceRecorder) Record(event StepEvent) {
	if r == nil {
		return
	}
	r.events = append(r.events, event)
}

// Snapshot copies the events recorded so far.
func (r *TraceRecorder) Snapshot() []StepEvent {
	if r == nil {
		return nil
	}
	out := make([]StepEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Trace assembles the canonical trace for the given plan.
func (r *TraceRecorder) Trace(planHash string) ProvisionTrace {
	tr := ProvisionTrace{PlanHash: planHash, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}
