package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/genvm/store"
	"github.com/chazu/genvm/vm"
)

const countScript = `
let greeting = "hello"
print(greeting)
function* count(n) {
	let i = 0
	while (i < n) {
		yield i
		i++
	}
	return "end"
}
function plain() { return 1 }
`

// project writes a genvm.toml and a script into a temp dir and returns the
// manifest path and script path.
func project(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "genvm.toml")
	if err := os.WriteFile(cfg, []byte("[project]\nname = \"count\"\nentry = \"count.js\"\n\n[store]\npath = \"state/snaps.db\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(dir, "count.js")
	if err := os.WriteFile(script, []byte(countScript), 0644); err != nil {
		t.Fatal(err)
	}
	return cfg, script
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// savedID extracts the id from the trailing "saved ID" line.
func savedID(t *testing.T, out string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	id, ok := strings.CutPrefix(lines[len(lines)-1], "saved ")
	if !ok || id == "" {
		t.Fatalf("no saved id in %q", out)
	}
	return id
}

func TestRunCommand(t *testing.T) {
	cfg, script := project(t)
	out, err := execute(t, "--config", cfg, "run", script)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hello\n" {
		t.Errorf("output = %q", out)
	}

	// Without a FILE the manifest entry is used.
	out, err = execute(t, "--config", cfg, "run")
	if err != nil || out != "hello\n" {
		t.Errorf("run entry = %q, %v", out, err)
	}
}

func TestRunReportsScriptErrors(t *testing.T) {
	cfg, _ := project(t)
	bad := filepath.Join(t.TempDir(), "bad.js")
	os.WriteFile(bad, []byte("throw Error(\"nope\")\n"), 0644)
	_, err := execute(t, "--config", cfg, "run", bad)
	var thrown *vm.ThrowError
	if !errors.As(err, &thrown) {
		t.Fatalf("run = %v, want *vm.ThrowError", err)
	}
	if !strings.Contains(thrown.Error(), "nope") {
		t.Errorf("error = %v", thrown)
	}

	os.WriteFile(bad, []byte("let = 3\n"), 0644)
	if _, err := execute(t, "--config", cfg, "run", bad); err == nil || !strings.Contains(err.Error(), "bad.js") {
		t.Errorf("compile error = %v", err)
	}
}

func TestDisasmCommand(t *testing.T) {
	cfg, script := project(t)
	out, err := execute(t, "--config", cfg, "disasm", script)
	if err != nil {
		t.Fatalf("disasm: %v", err)
	}
	for _, want := range []string{"; program ", "function* count", "YIELD", "RESUME", "function plain"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestStepSaveAndResume(t *testing.T) {
	cfg, script := project(t)

	out, err := execute(t, "--config", cfg, "step", script, "count", "3", "--steps", "2", "--save")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{"hello", "{ value: 0, done: false }", "{ value: 1, done: false }"}
	if len(lines) != 4 || strings.Join(lines[:3], "\n") != strings.Join(want, "\n") {
		t.Fatalf("step output:\n%s", out)
	}
	id := savedID(t, out)

	out, err = execute(t, "--config", cfg, "snapshots")
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Errorf("snapshots does not list %s:\n%s", id, out)
	}

	// One step: still suspended, saved back.
	out, err = execute(t, "--config", cfg, "resume", script, id)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if out != "hello\n{ value: 2, done: false }\nsaved "+id+"\n" {
		t.Errorf("resume output = %q", out)
	}

	out, err = execute(t, "--config", cfg, "resume", script, id, "-n", "5")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if out != "hello\n{ value: \"end\", done: true }\ncompleted "+id+"\n" {
		t.Errorf("final resume output = %q", out)
	}

	out, _ = execute(t, "--config", cfg, "snapshots")
	if out != "no snapshots\n" {
		t.Errorf("snapshots after completion = %q", out)
	}
	if _, err := execute(t, "--config", cfg, "resume", script, id); !errors.Is(err, store.ErrSnapshotNotFound) {
		t.Errorf("resume of completed generator = %v", err)
	}
}

func TestResumeWithChangedScript(t *testing.T) {
	cfg, script := project(t)
	out, err := execute(t, "--config", cfg, "step", script, "count", "3", "--save")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	id := savedID(t, out)

	if err := os.WriteFile(script, []byte(countScript+"\nlet changed = true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", cfg, "resume", script, id); err == nil || !strings.Contains(err.Error(), "program") {
		t.Errorf("resume against a changed script = %v", err)
	}
}

func TestStepErrors(t *testing.T) {
	cfg, script := project(t)
	if _, err := execute(t, "--config", cfg, "step", script, "plain"); err == nil || !strings.Contains(err.Error(), "did not return a generator") {
		t.Errorf("step plain = %v", err)
	}
	if _, err := execute(t, "--config", cfg, "step", script, "missing"); err == nil {
		t.Error("step of an undefined function succeeded")
	}
	out, err := execute(t, "--config", cfg, "step", script, "count", "0", "--save")
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !strings.Contains(out, "nothing to save") {
		t.Errorf("completed generator output = %q", out)
	}
}

func TestSnapshotsRemove(t *testing.T) {
	cfg, _ := project(t)
	dbPath := filepath.Join(filepath.Dir(cfg), "state", "snaps.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Save("x", "h", []byte{1})
	st.Close()

	if _, err := execute(t, "--config", cfg, "snapshots", "rm", "x"); err != nil {
		t.Fatalf("snapshots rm: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "snapshots", "rm", "x"); !errors.Is(err, store.ErrSnapshotNotFound) {
		t.Errorf("second rm = %v", err)
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"3", "3"},
		{"-1.5", "-1.5"},
		{"true", "true"},
		{"null", "null"},
		{"undefined", "undefined"},
		{"word", `"word"`},
	}
	for _, tc := range tests {
		if got := parseArg(tc.in).Inspect(); got != tc.want {
			t.Errorf("parseArg(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
