package provision

import (
	"strings"
	"testing"
)

func TestEnvFromSliceAndSlice(t *testing.T) {
	env := EnvFromSlice([]string{"B=2", "A=1", "MALFORMED", "=empty", "C=x=y"})
	got := env.Slice()
	want := []string{"A=1", "B=2", "C=x=y"}
	if len(got) != len(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %q got %q", i, want[i], got[i])
		}
	}
}

func TestEnvSetPath_ReplacesCaseInsensitively(t *testing.T) {
	env := Env{"Path": "old", "HOME": "/home/u"}
	env.SetPath("new")
	if env["PATH"] != "new" {
		t.Fatalf("expected PATH=new got %q", env["PATH"])
	}
	if _, ok := env["Path"]; ok {
		t.Fatal("expected old Path entry removed")
	}
	if env["HOME"] != "/home/u" {
		t.Fatal("unrelated entries must be preserved")
	}
}

func TestEnvClone_IsIndependent(t *testing.T) {
	env := Env{"A": "1"}
	c := env.Clone()
	c["A"] = "2"
	if env["A"] != "1" {
		t.Fatalf("clone mutation leaked: %q", env["A"])
	}
}

func TestPlanHash_StableAndDiscriminating(t *testing.T) {
	p := Plan{
		Interpreter: InterpreterSpec{Version: "3.11"},
		EnvDir:      ".venv",
		Manifest:    "requirements.txt",
		Platform:    "linux",
	}
	if p.Hash() != p.Hash() {
		t.Fatal("plan hash must be stable")
	}

	q := p
	q.Interpreter.Version = "3.12"
	if p.Hash() == q.Hash() {
		t.Fatal("different interpreter versions must hash differently")
	}

	r := p
	r.Platform = "windows"
	if p.Hash() == r.Hash() {
		t.Fatal("different platforms must hash differently")
	}
}

func TestPlanCanonicalJSON_FieldOrder(t *testing.T) {
	p := Plan{
		Interpreter: InterpreterSpec{Version: "3.11"},
		EnvDir:      ".venv",
		Manifest:    "requirements.txt",
		Platform:    "linux",
	}
	s := string(p.CanonicalJSON())
	if !strings.HasPrefix(s, `{"interpreter":"3.11","envDir":".venv"`) {
		t.Fatalf("unexpected canonical encoding: %s", s)
	}
}
