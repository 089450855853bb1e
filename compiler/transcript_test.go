package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadTranscriptRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown top-level key", "name = \"x\"\nturbo = true\n", "unknown key"},
		{"not toml", "event = [\n", "parse transcript"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTranscript(strings.NewReader(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestReplayUnknownEvent(t *testing.T) {
	tr := &Transcript{Events: []Event{{Kind: "init"}, {Kind: "teleport"}}}
	if _, err := Compile(tr, Options{}); err == nil || !strings.Contains(err.Error(), "teleport") {
		t.Errorf("err = %v, want unknown event kind", err)
	}
}

func TestLoadTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exit.toml")
	src := "event = [\n  { kind = \"init\" },\n  { kind = \"exit\" },\n]\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	tr, err := LoadTranscript(path)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Name != path {
		t.Errorf("name = %q, want the file path", tr.Name)
	}
	quads, err := Compile(tr, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(opNames(quads), " "); got != "GOTO INIT EXIT" {
		t.Errorf("ops = %s", got)
	}

	if _, err := LoadTranscript(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file should fail")
	}
}
