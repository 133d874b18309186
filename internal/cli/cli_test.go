package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSchemaCommandPrintsValidJSON(t *testing.T) {
	schemaPlain = true
	defer func() { schemaPlain = false }()

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	runErr := runSchema(schemaCmd, nil)

	w.Close()
	os.Stdout = old

	if runErr != nil {
		t.Fatalf("runSchema: %v", runErr)
	}

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("schema output is not valid JSON: %v", err)
	}
	if decoded["title"] != "BroodConfig" {
		t.Fatalf("unexpected schema title: %v", decoded["title"])
	}
}

func TestRunDryDoesNotExecuteCommands(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	configPath := filepath.Join(dir, "brood.json")

	doc := `{
		"failure_mode": "continue",
		"commands": [{"name":"a","command":"touch ` + marker + `","starter":{"type":"once"}}]
	}`
	if err := os.WriteFile(configPath, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	runDry = true
	defer func() { runDry = false }()

	if err := runRun(runCmd, []string{configPath}); err != nil {
		t.Fatalf("runRun: %v", err)
	}

	if _, err := os.Stat(marker); err == nil {
		t.Fatal("expected --dry to skip executing any command")
	}
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	runErr := versionCmd.RunE(versionCmd, nil)

	w.Close()
	os.Stdout = old

	if runErr != nil {
		t.Fatalf("version: %v", runErr)
	}

	var buf bytes.Buffer
	buf.ReadFrom(r)
	if !bytes.Contains(buf.Bytes(), []byte("brood")) {
		t.Fatalf("unexpected version output: %q", buf.String())
	}
}
