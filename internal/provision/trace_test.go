package provision

import (
	"strings"
	"testing"
)

func sampleEvents() []StepEvent {
	return []StepEvent{
		{Kind: EventDependenciesInstalled, Step: StateInstallingDeps, Command: "pip install -r requirements.txt"},
		{Kind: EventInterpreterFound, Step: StateCheckingInterpreter, Command: "python3.11 --version"},
		{Kind: EventEnvironmentReused, Step: StateCreatingEnv, Reason: "DirExists"},
		{Kind: EventToolingUpgraded, Step: StateUpgradingTooling},
	}
}

func TestCanonicalJSON_StableAcrossCollectionOrder(t *testing.T) {
	a := ProvisionTrace{PlanHash: "h1", Events: sampleEvents()}

	reversed := sampleEvents()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b := ProvisionTrace{PlanHash: "h1", Events: reversed}

	ja, err := a.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical a: %v", err)
	}
	jb, err := b.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical b: %v", err)
	}
	if string(ja) != string(jb) {
		t.Fatalf("canonical bytes differ:\n%s\n%s", ja, jb)
	}

	ha, err := a.TraceHash()
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hb, err := b.TraceHash()
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if ha != hb {
		t.Fatalf("hashes differ: %s vs %s", ha, hb)
	}
}

func TestCanonicalJSON_DoesNotMutateCaller(t *testing.T) {
	events := sampleEvents()
	tr := ProvisionTrace{PlanHash: "h1", Events: events}
	if _, err := tr.CanonicalJSON(); err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if events[0].Kind != EventDependenciesInstalled {
		t.Fatalf("caller slice mutated: %v", events[0])
	}
}

func TestCanonicalJSON_FieldOrderAndOmission(t *testing.T) {
	tr := ProvisionTrace{
		PlanHash: "abc",
		Events: []StepEvent{
			{Kind: EventEnvironmentReused, Step: StateCreatingEnv, Reason: "DirExists"},
		},
	}
	b, err := tr.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	s := string(b)
	if !strings.HasPrefix(s, `{"planHash":"abc","events":[`) {
		t.Fatalf("unexpected field order: %s", s)
	}
	if strings.Contains(s, "command") {
		t.Fatalf("empty optional field must be omitted: %s", s)
	}
	if !strings.Contains(s, `{"kind":"EnvironmentReused","step":"CREATING_ENV","reason":"DirExists"}`) {
		t.Fatalf("unexpected event encoding: %s", s)
	}
}

func TestValidate_RejectsIncompleteTraces(t *testing.T) {
	var nilTrace *ProvisionTrace
	if err := nilTrace.Validate(); err == nil {
		t.Fatal("expected error for nil trace")
	}

	tr := &ProvisionTrace{Events: []StepEvent{{Kind: EventStepFailed, Step: StateFailed}}}
	if err := tr.Validate(); err == nil {
		t.Fatal("expected error for missing plan hash")
	}

	tr = &ProvisionTrace{PlanHash: "h", Events: []StepEvent{{Step: StateCreatingEnv}}}
	if err := tr.Validate(); err == nil {
		t.Fatal("expected error for missing kind")
	}

	tr = &ProvisionTrace{PlanHash: "h", Events: []StepEvent{{Kind: EventStepFailed}}}
	if err := tr.Validate(); err == nil {
		t.Fatal("expected error for missing step")
	}
}

func TestRecorder_SnapshotIsIndependent(t *testing.T) {
	rec := NewTraceRecorder()
	rec.Record(StepEvent{Kind: EventInterpreterFound, Step: StateCheckingInterpreter})

	snap := rec.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 event, got %d", len(snap))
	}
	snap[0].Kind = EventStepFailed

	again := rec.Snapshot()
	if again[0].Kind != EventInterpreterFound {
		t.Fatalf("snapshot mutation leaked into recorder: %v", again[0])
	}
}

func TestRecorder_TraceCanonicalizes(t *testing.T) {
	rec := NewTraceRecorder()
	rec.Record(StepEvent{Kind: EventDependenciesInstalled, Step: StateInstallingDeps})
	rec.Record(StepEvent{Kind: EventInterpreterFound, Step: StateCheckingInterpreter})

	tr := rec.Trace("h")
	if tr.Events[0].Kind != EventInterpreterFound {
		t.Fatalf("expected canonical ordering, got %v", tr.Events)
	}
}

type panickySink struct{}

func (panickySink) Record(StepEvent) { panic("sink bug") }

func TestSafeRecord_IsInert(t *testing.T) {
	SafeRecord(nil, StepEvent{Kind: EventStepFailed, Step: StateFailed})
	SafeRecord(panickySink{}, StepEvent{Kind: EventStepFailed, Step: StateFailed})

	var nilRecorder *TraceRecorder
	nilRecorder.Record(StepEvent{Kind: EventStepFailed, Step: StateFailed})
	if got := nilRecorder.Snapshot(); got != nil {
		t.Fatalf("expected nil snapshot from nil recorder, got %v", got)
	}
}
